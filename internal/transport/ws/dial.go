package ws

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/omochice/bsc-netlayer/pkg/wserr"
)

// handshake runs resolve, connect, the optional TLS handshake and the
// upgrade. On success the returned frameConn is ready for framing.
func (w *Worker) handshake(ctx context.Context) (*frameConn, *bufio.Reader, error) {
	w.setState(StateResolving)
	addrs, err := w.resolve(ctx)
	if err != nil {
		return nil, nil, wserr.New(wserr.CodeDNSResolution, "resolve", err)
	}

	w.setState(StateConnecting)
	conn, err := w.connect(ctx, addrs)
	if err != nil {
		return nil, nil, wserr.New(wserr.CodeConnectionRefused, "connect", err)
	}
	w.attach(conn)

	if w.cfg.TLS != nil {
		w.setState(StateTLSHandshaking)
		tlsConn, err := w.secure(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, nil, wserr.New(w.tlsErrorCode(err), "tls handshake", err)
		}
		conn = tlsConn
		w.attach(conn)
	}

	w.setState(StateProtocolHandshaking)
	br, err := w.upgrade(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, nil, wserr.New(wserr.CodeConnectionRefused, "upgrade", err)
	}

	if br != nil {
		return newFrameConn(conn, br), br, nil
	}
	return newFrameConn(conn, nil), nil, nil
}

// resolve looks up the target host. IP literals skip the lookup.
func (w *Worker) resolve(ctx context.Context) ([]string, error) {
	if w.addr.Host == "" {
		return nil, errors.New("empty host")
	}
	if w.addr.IsRawIP() {
		return []string{w.addr.Host}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.ConnectTimeout)
	defer cancel()

	addrs, err := w.cfg.Resolver.LookupHost(ctx, w.addr.Host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses for %s", w.addr.Host)
	}
	w.logger.Debug("resolved", zap.Strings("addrs", addrs))
	return addrs, nil
}

// connect tries each resolved endpoint in order until one accepts.
func (w *Worker) connect(ctx context.Context, addrs []string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.ConnectTimeout)
	defer cancel()

	dialer := net.Dialer{KeepAlive: -1}
	if w.cfg.KeepAlive {
		dialer.KeepAlive = 0
	}

	var lastErr error
	for _, addr := range addrs {
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, w.addr.Port))
		if err == nil {
			w.logger.Debug("connected", zap.String("remote", conn.RemoteAddr().String()))
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// secure performs the TLS handshake, presenting the configured client
// certificate if any.
func (w *Worker) secure(ctx context.Context, conn net.Conn) (net.Conn, error) {
	cfg := w.cfg.TLS.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = w.addr.Host
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.HandshakeTimeout)
	defer cancel()

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

// tlsErrorCode attributes a TLS failure. A name mismatch on a hostname
// target is reported as a resolution failure; everything else is a TLS
// handshake failure.
func (w *Worker) tlsErrorCode(err error) wserr.Code {
	var hostErr x509.HostnameError
	if !w.addr.IsRawIP() && errors.As(err, &hostErr) {
		return wserr.CodeDNSResolution
	}
	return wserr.CodeTLSHandshake
}

// upgrade performs the HTTP upgrade on an already connected socket.
func (w *Worker) upgrade(ctx context.Context, conn net.Conn) (*bufio.Reader, error) {
	if err := conn.SetDeadline(time.Now().Add(w.cfg.HandshakeTimeout)); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	var dialer ws.Dialer
	if w.cfg.UserAgent != "" {
		dialer.Header = ws.HandshakeHeaderHTTP(http.Header{
			"User-Agent": []string{w.cfg.UserAgent},
		})
	}
	if w.cfg.Subprotocol != "" {
		dialer.Protocols = []string{w.cfg.Subprotocol}
	}

	br, hs, err := dialer.Upgrade(conn, w.addr.URL())
	if err != nil {
		return nil, err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}
	w.logger.Debug("upgraded", zap.String("protocol", hs.Protocol))
	return br, nil
}
