package ws

import "sync"

// inbox is the FIFO of received payloads. The receive loop pushes, the
// facade pops.
type inbox struct {
	mu       sync.Mutex
	messages [][]byte
}

func (q *inbox) push(data []byte) {
	q.mu.Lock()
	q.messages = append(q.messages, data)
	q.mu.Unlock()
}

func (q *inbox) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 {
		return nil, false
	}
	data := q.messages[0]
	q.messages[0] = nil
	q.messages = q.messages[1:]
	return data, true
}

func (q *inbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// errorSlot holds the most recent failure. A second failure before the
// first is taken overwrites it.
type errorSlot struct {
	mu  sync.Mutex
	err error
}

func (s *errorSlot) set(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *errorSlot) take() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.err
	s.err = nil
	return err
}

func (s *errorSlot) peek() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
