package client_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/omochice/bsc-netlayer/internal/client"
	"github.com/omochice/bsc-netlayer/internal/metrics"
	"github.com/omochice/bsc-netlayer/internal/transport/ws"
	"github.com/omochice/bsc-netlayer/pkg/wserr"
)

func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")

		for {
			typ, data, err := c.Read(context.Background())
			if err != nil {
				return
			}
			if err := c.Write(context.Background(), typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// recvEventually polls Recv the way the protocol engine does.
func recvEventually(t *testing.T, c client.Client, buf []byte) int {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := c.Recv(buf)
		require.NoError(t, err)
		if n > 0 {
			return n
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for message")
	return 0
}

func TestFacade_RoundTrip(t *testing.T) {
	server := newEchoServer(t)
	c := client.NewInsecure(ws.DefaultConfig())
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background(), wsURL(server)))
	require.True(t, c.IsConnected())
	assert.Equal(t, ws.StateOpen, c.State())

	n, err := c.Send([]byte("testing"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	buf := make([]byte, 1024)
	n = recvEventually(t, c, buf)
	assert.Equal(t, "testing", string(buf[:n]))
}

func TestFacade_RecvDropsMessageThatDoesNotFit(t *testing.T) {
	server := newEchoServer(t)
	c := client.NewInsecure(ws.DefaultConfig())
	defer c.Disconnect()
	require.NoError(t, c.Connect(context.Background(), wsURL(server)))

	_, err := c.Send([]byte("testing"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)

	n, err := c.Recv(make([]byte, 7))
	require.NoError(t, err)
	assert.Zero(t, n, "a message of exactly len(buf) bytes is dropped")
	assert.Zero(t, c.Pending(), "dropped message is not kept for a larger buffer")

	n, err = c.Recv(make([]byte, 1024))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = c.Send([]byte("testing"))
	require.NoError(t, err)
	buf := make([]byte, 8)
	n = recvEventually(t, c, buf)
	assert.Equal(t, "testing", string(buf[:n]))
}

func TestFacade_RecvNeverBlocks(t *testing.T) {
	server := newEchoServer(t)
	c := client.NewInsecure(ws.DefaultConfig())
	defer c.Disconnect()
	require.NoError(t, c.Connect(context.Background(), wsURL(server)))

	start := time.Now()
	n, err := c.Recv(make([]byte, 64))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Zero(t, n)
	assert.NoError(t, err)
}

func TestFacade_WithoutConnect(t *testing.T) {
	c := client.NewInsecure(ws.DefaultConfig())

	assert.False(t, c.IsConnected())
	n, err := c.Send([]byte("x"))
	assert.Zero(t, n)
	assert.NoError(t, err)
	n, err = c.Recv(make([]byte, 8))
	assert.Zero(t, n)
	assert.NoError(t, err)
	assert.NotPanics(t, c.Disconnect)
}

func TestFacade_DisconnectTwice(t *testing.T) {
	server := newEchoServer(t)
	c := client.NewInsecure(ws.DefaultConfig())
	require.NoError(t, c.Connect(context.Background(), wsURL(server)))

	c.Disconnect()
	assert.False(t, c.IsConnected())
	c.Disconnect()
	assert.False(t, c.IsConnected())
}

func TestFacade_ReconnectClosesPrevious(t *testing.T) {
	server := newEchoServer(t)
	c := client.NewInsecure(ws.DefaultConfig())
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background(), wsURL(server)))
	first := c.ConnID()
	require.NoError(t, c.Connect(context.Background(), wsURL(server)))

	assert.NotEqual(t, first, c.ConnID())
	assert.True(t, c.IsConnected())
}

func TestFacade_ConnectFailureCarriesCode(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	c := client.NewInsecure(ws.DefaultConfig(), client.WithMetrics(m))
	defer c.Disconnect()

	err = c.Connect(context.Background(), wsURL(server))
	require.Error(t, err)
	assert.Equal(t, wserr.CodeConnectionRefused, wserr.CodeOf(err))
	assert.False(t, c.IsConnected())

	// The slot was read by Connect, so later calls see no stale error.
	_, err = c.Recv(make([]byte, 8))
	assert.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "bsc_netlayer_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFacade_DNSFailure(t *testing.T) {
	cfg := ws.DefaultConfig()
	cfg.Resolver = &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, errors.New("resolver unavailable")
		},
	}
	c := client.NewInsecure(cfg)
	defer c.Disconnect()

	err := c.Connect(context.Background(), "ws://nonexistent.invalid/")
	require.Error(t, err)
	assert.Equal(t, wserr.CodeDNSResolution, wserr.CodeOf(err))
	assert.False(t, c.IsConnected())
	assert.Equal(t, ws.StateFailed, c.State())
}

func TestFacade_ConnectHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	c := client.NewInsecure(ws.DefaultConfig())
	defer c.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.Connect(ctx, wsURL(server))
	require.Error(t, err)
	assert.Equal(t, wserr.CodeTCPConnectTimeout, wserr.CodeOf(err))
	assert.False(t, c.IsConnected())
}

func TestFacade_SendAfterPeerCloseReportsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		c.Close(websocket.StatusNormalClosure, "")
	}))
	defer server.Close()

	c := client.NewInsecure(ws.DefaultConfig())
	defer c.Disconnect()
	require.NoError(t, c.Connect(context.Background(), wsURL(server)))
	require.Eventually(t, func() bool { return !c.IsConnected() }, 2*time.Second, 5*time.Millisecond)

	n, err := c.Send([]byte("testing"))
	assert.Zero(t, n)
	assert.Error(t, err)
}
