package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omochice/bsc-netlayer/pkg/wserr"
	"github.com/omochice/bsc-netlayer/pkg/wsuri"
)

var (
	// ErrNotConnected is returned for writes before the handshake finished
	// or after the connection closed.
	ErrNotConnected = errors.New("not connected")
	// ErrWorkerExited is returned when the worker goroutine is gone.
	ErrWorkerExited = errors.New("worker exited")
)

type writeRequest struct {
	data   []byte
	result chan writeResult
}

type writeResult struct {
	n   int
	err error
}

// Worker drives one WebSocket connection: resolve, connect, optional TLS,
// upgrade, then a continuous receive loop. It runs on its own goroutine and
// accepts one write at a time.
type Worker struct {
	id     string
	addr   wsuri.Address
	cfg    Config
	logger *zap.Logger

	state         atomic.Int32
	failCode      atomic.Uint32
	handshakeDone atomic.Bool
	open          atomic.Bool
	closing       atomic.Bool
	started       atomic.Bool

	inbox inbox
	errs  errorSlot

	// handshakeErr is written before ready is closed.
	handshakeErr error

	mu      sync.Mutex
	written int

	connMu sync.Mutex
	conn   net.Conn

	writes    chan writeRequest
	closeReq  chan chan error
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	startOnce sync.Once
	cancel    context.CancelFunc
}

// NewWorker creates an idle worker for addr. The TLS field of cfg selects
// the secure variant.
func NewWorker(addr wsuri.Address, cfg Config, opts ...Option) *Worker {
	w := &Worker{
		id:       uuid.NewString(),
		addr:     addr,
		cfg:      cfg.withDefaults(),
		logger:   zap.NewNop(),
		writes:   make(chan writeRequest),
		closeReq: make(chan chan error),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(
		zap.String("conn_id", w.id),
		zap.String("target", addr.HostPort()),
		zap.Bool("secure", w.cfg.TLS != nil),
	)
	return w
}

// Start launches the worker goroutine bound to ctx. Only the first call
// has an effect.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		w.cancel = cancel
		w.started.Store(true)
		go w.run(ctx)
	})
}

// ID returns the connection id used in logs.
func (w *Worker) ID() string {
	return w.id
}

// Address returns the parsed target.
func (w *Worker) Address() wsuri.Address {
	return w.addr
}

// Ready is closed once the handshake has finished, successfully or not.
func (w *Worker) Ready() <-chan struct{} {
	return w.ready
}

// Done is closed when the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// FailCode returns the code recorded by the last failure, if any.
func (w *Worker) FailCode() wserr.Code {
	return wserr.Code(w.failCode.Load())
}

// IsConnected reports whether the handshake completed and the socket is
// still open. Both are checked because the handshake flag alone goes stale
// after an asynchronous close.
func (w *Worker) IsConnected() bool {
	return w.handshakeDone.Load() && w.open.Load()
}

// Pop removes the oldest received payload.
func (w *Worker) Pop() ([]byte, bool) {
	return w.inbox.pop()
}

// Pending returns the number of queued payloads.
func (w *Worker) Pending() int {
	return w.inbox.len()
}

// TakeErr returns and clears the most recent failure.
func (w *Worker) TakeErr() error {
	return w.errs.take()
}

// Err returns the most recent failure without clearing it.
func (w *Worker) Err() error {
	return w.errs.peek()
}

// BytesWritten returns the byte count of the last completed write.
func (w *Worker) BytesWritten() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// HandshakeErr returns the error that ended the handshake, or nil if it
// completed. It is only meaningful once Ready is closed.
func (w *Worker) HandshakeErr() error {
	select {
	case <-w.ready:
		return w.handshakeErr
	default:
		return nil
	}
}

// Write hands data to the worker goroutine and blocks until the frame has
// been written or has failed.
func (w *Worker) Write(data []byte) (int, error) {
	if !w.started.Load() || !w.handshakeDone.Load() {
		return 0, w.record(wserr.New(wserr.CodeTCPError, "write", ErrNotConnected))
	}

	req := writeRequest{data: data, result: make(chan writeResult, 1)}
	select {
	case w.writes <- req:
	case <-w.done:
		return 0, w.record(w.exitedError("write"))
	}

	select {
	case r := <-req.result:
		return r.n, r.err
	case <-w.done:
		select {
		case r := <-req.result:
			return r.n, r.err
		default:
			return 0, w.record(w.exitedError("write"))
		}
	}
}

// Close starts a graceful shutdown and blocks until it has finished. It is
// safe to call more than once. A worker still handshaking is aborted; a
// worker stuck in a write is aborted after the close timeout.
func (w *Worker) Close() error {
	if !w.started.Load() {
		return nil
	}
	select {
	case <-w.done:
		w.markClosed()
		return nil
	default:
	}

	if !w.handshakeDone.Load() {
		w.abort()
		<-w.done
		w.markClosed()
		return nil
	}

	reply := make(chan error, 1)
	select {
	case w.closeReq <- reply:
		<-w.done
		select {
		case err := <-reply:
			return err
		default:
			return nil
		}
	case <-w.done:
		w.markClosed()
		return nil
	case <-time.After(w.cfg.CloseTimeout):
		w.logger.Warn("close timed out, aborting")
		w.abort()
		<-w.done
		w.markClosed()
		return wserr.New(wserr.CodeTCPClosedByLocal, "close", errors.New("close timed out"))
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.signalReady()
	defer func() {
		if r := recover(); r != nil {
			err := wserr.New(wserr.CodeTCPError, "worker", fmt.Errorf("panic: %v", r))
			if !w.handshakeDone.Load() {
				w.handshakeErr = err
			}
			w.fail(err)
			w.closeConn()
		}
	}()

	fc, br, err := w.handshake(ctx)
	if err != nil {
		w.handshakeErr = err
		w.fail(err)
		return
	}

	w.handshakeDone.Store(true)
	w.open.Store(true)
	w.setState(StateOpen)
	w.logger.Info("connection open")
	w.signalReady()

	readDone := make(chan struct{})
	go w.receive(fc, readDone)

	w.serve(ctx, fc, readDone)
	if br != nil {
		ws.PutReader(br)
	}
}

func (w *Worker) serve(ctx context.Context, fc *frameConn, readDone <-chan struct{}) {
	for {
		select {
		case req := <-w.writes:
			n, err := w.write(fc, req.data)
			req.result <- writeResult{n: n, err: err}
		case reply := <-w.closeReq:
			reply <- w.shutdown(fc, readDone)
			return
		case <-ctx.Done():
			_ = w.shutdown(fc, readDone)
			return
		}
	}
}

func (w *Worker) write(fc *frameConn, data []byte) (int, error) {
	if !w.open.Load() {
		return 0, w.record(wserr.New(wserr.CodeTCPClosedOther, "write", ErrNotConnected))
	}

	n, err := fc.WriteMessage(data)
	w.mu.Lock()
	w.written = n
	w.mu.Unlock()
	if err != nil {
		return 0, w.record(wserr.New(wserr.CodeTCPError, "write", err))
	}
	return n, nil
}

// receive keeps exactly one read outstanding while open and queues every
// payload in arrival order.
func (w *Worker) receive(fc *frameConn, done chan<- struct{}) {
	defer close(done)

	for {
		if w.cfg.IdleTimeout > 0 && !w.closing.Load() {
			_ = fc.SetReadDeadline(time.Now().Add(w.cfg.IdleTimeout))
		}

		data, err := fc.ReadMessage()
		if err != nil {
			w.open.Store(false)
			if w.closing.Load() {
				return
			}

			var closed wsutil.ClosedError
			if errors.As(err, &closed) || errors.Is(err, io.EOF) {
				w.record(wserr.New(wserr.CodeTCPClosedOther, "read", err))
				w.setState(StateClosed)
			} else {
				w.fail(wserr.New(wserr.CodeTCPError, "read", err))
			}
			_ = fc.Close()
			return
		}
		w.inbox.push(data)
	}
}

func (w *Worker) shutdown(fc *frameConn, readDone <-chan struct{}) error {
	w.closing.Store(true)
	w.setState(StateClosing)

	var err error
	if w.open.Load() {
		if werr := fc.WriteClose(); werr != nil {
			err = wserr.New(wserr.CodeTCPError, "close", werr)
		}
		_ = fc.SetReadDeadline(time.Now().Add(w.cfg.CloseTimeout))
	} else {
		_ = fc.Close()
	}

	<-readDone
	if cerr := fc.Close(); cerr != nil && err == nil && !errors.Is(cerr, net.ErrClosed) {
		err = wserr.New(wserr.CodeTCPError, "close", cerr)
	}

	w.markClosed()
	w.logger.Info("connection closed")
	return err
}

func (w *Worker) markClosed() {
	w.handshakeDone.Store(false)
	w.open.Store(false)
	w.setState(StateClosed)
}

func (w *Worker) abort() {
	w.closing.Store(true)
	w.cancel()
	w.closeConn()
}

func (w *Worker) attach(conn net.Conn) {
	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()
}

func (w *Worker) closeConn() {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn != nil {
		_ = w.conn.Close()
	}
}

func (w *Worker) signalReady() {
	w.readyOnce.Do(func() {
		close(w.ready)
	})
}

func (w *Worker) setState(s State) {
	prev := State(w.state.Swap(int32(s)))
	if prev != s {
		w.logger.Debug("state change", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

func (w *Worker) record(err error) error {
	w.errs.set(err)
	return err
}

func (w *Worker) fail(err error) {
	code := wserr.CodeOf(err)
	w.errs.set(err)
	w.failCode.Store(uint32(code))
	w.setState(StateFailed)
	w.logger.Warn("connection failed", zap.Stringer("code", code), zap.Error(err))
}

func (w *Worker) exitedError(op string) error {
	if w.closing.Load() {
		return wserr.New(wserr.CodeTCPClosedByLocal, op, ErrWorkerExited)
	}
	return wserr.New(wserr.CodeTCPError, op, ErrWorkerExited)
}
