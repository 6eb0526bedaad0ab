package server

import (
	"bufio"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

type protocolType int

const (
	protocolPlain protocolType = iota
	protocolTLS
)

// recordTypeHandshake is the first byte of a TLS ClientHello record.
const recordTypeHandshake = 0x16

// detectProtocol peeks at the first byte to tell a TLS ClientHello from a
// plain HTTP upgrade request.
func detectProtocol(reader *bufio.Reader) (protocolType, error) {
	peek, err := reader.Peek(1)
	if err != nil {
		return protocolPlain, err
	}
	if peek[0] == recordTypeHandshake {
		return protocolTLS, nil
	}
	return protocolPlain, nil
}

// bufferedConn wraps a net.Conn with a bufio.Reader to preserve peeked data.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (bc *bufferedConn) Read(p []byte) (int, error) {
	return bc.reader.Read(p)
}

// sniffListener serves ws and wss on one port. Each accepted connection is
// classified on its own goroutine so a silent client cannot stall Accept.
type sniffListener struct {
	net.Listener
	tls     *tls.Config
	timeout time.Duration
	logger  *zap.Logger

	conns chan net.Conn
	quit  chan struct{}
	once  sync.Once
	err   error
	wg    sync.WaitGroup
}

func newSniffListener(inner net.Listener, cfg *tls.Config, timeout time.Duration, logger *zap.Logger) *sniffListener {
	l := &sniffListener{
		Listener: inner,
		tls:      cfg,
		timeout:  timeout,
		logger:   logger,
		conns:    make(chan net.Conn),
		quit:     make(chan struct{}),
	}
	l.wg.Add(1)
	go l.acceptConnections()
	return l
}

func (l *sniffListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.quit:
		if l.err != nil {
			return nil, l.err
		}
		return nil, net.ErrClosed
	}
}

func (l *sniffListener) Close() error {
	err := l.Listener.Close()
	l.once.Do(func() { close(l.quit) })
	l.wg.Wait()
	return err
}

func (l *sniffListener) acceptConnections() {
	defer l.wg.Done()

	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			l.once.Do(func() {
				l.err = err
				close(l.quit)
			})
			return
		}

		l.wg.Add(1)
		go l.handleConnection(conn)
	}
}

func (l *sniffListener) handleConnection(conn net.Conn) {
	defer l.wg.Done()

	reader := bufio.NewReader(conn)
	_ = conn.SetReadDeadline(time.Now().Add(l.timeout))
	proto, err := detectProtocol(reader)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		l.logger.Debug("failed to peek connection", zap.Error(err))
		conn.Close()
		return
	}

	var out net.Conn = &bufferedConn{Conn: conn, reader: reader}
	if proto == protocolTLS {
		out = tls.Server(out, l.tls)
	}

	select {
	case l.conns <- out:
	case <-l.quit:
		conn.Close()
	}
}
