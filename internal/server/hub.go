package server

import (
	"fmt"
	"sync"
)

// Peer is one connected client of the test server.
type Peer struct {
	Conn     Conn
	Outgoing chan []byte
}

// Hub tracks connected peers and fans messages out to them.
type Hub struct {
	peers   map[*Peer]bool
	mu      sync.RWMutex
	counter uint64
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		peers: make(map[*Peer]bool),
	}
}

// Register adds a peer to the hub.
func (h *Hub) Register(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p] = true
}

// Unregister removes a peer from the hub. Once it returns no broadcast
// writes to p.Outgoing any more.
func (h *Hub) Unregister(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, p)
}

// PeerCount returns number of connected peers.
func (h *Hub) PeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Broadcast queues data for every peer, the sender included, and returns
// how many peers accepted it. Peers with a full queue are skipped.
func (h *Hub) Broadcast(data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for p := range h.peers {
		if h.offer(p, data) {
			sent++
		}
	}
	return sent
}

// Tick sends "[n]" to every peer, incrementing n once per peer.
func (h *Hub) Tick() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for p := range h.peers {
		if h.offer(p, fmt.Appendf(nil, "[%d]", h.counter)) {
			sent++
		}
		h.counter++
	}
	return sent
}

// CloseAll closes every peer connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.peers {
		_ = p.Conn.Close()
	}
}

func (h *Hub) offer(p *Peer, data []byte) bool {
	select {
	case p.Outgoing <- data:
		return true
	default:
		return false
	}
}
