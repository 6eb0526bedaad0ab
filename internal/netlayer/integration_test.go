package netlayer_test

import (
	"crypto/tls"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/bsc-netlayer/internal/database"
	"github.com/omochice/bsc-netlayer/internal/netlayer"
	"github.com/omochice/bsc-netlayer/internal/registry"
	"github.com/omochice/bsc-netlayer/internal/server"
	"github.com/omochice/bsc-netlayer/internal/transport/ws"
)

func startPeer(t *testing.T, cfg server.Config) *server.Server {
	t.Helper()
	cfg.Listen = "127.0.0.1:0"
	cfg.Subprotocols = []string{ws.DefaultSubprotocol}
	srv := server.New(cfg)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

// collect polls until want messages arrived and returns them by URI.
func collect(t *testing.T, b *netlayer.Bridge, want int) map[string][]string {
	t.Helper()
	got := map[string][]string{}
	buf := make([]byte, 1024)
	deadline := time.Now().Add(3 * time.Second)
	for count := 0; count < want; {
		if time.Now().After(deadline) {
			t.Fatalf("received %d of %d messages: %v", count, want, got)
		}
		n, uri := b.PollReceive(buf)
		if n == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		got[uri] = append(got[uri], string(buf[:n]))
		count++
	}
	return got
}

func TestIntegration_EchoBetweenClients(t *testing.T) {
	srv := startPeer(t, server.Config{})
	uri := "ws://" + srv.Addr() + "/"

	reg := registry.New(ws.DefaultConfig())
	defer reg.Close()
	b := netlayer.NewBridge(reg)

	other := registry.New(ws.DefaultConfig())
	defer other.Close()
	ob := netlayer.NewBridge(other)

	require.True(t, b.InitiateConnection([]byte(uri)))
	require.True(t, ob.InitiateConnection([]byte(uri)))
	require.Eventually(t, func() bool { return srv.PeerCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 7, b.SendOutbound([]byte("testing"), []byte(uri)))

	assert.Equal(t, []string{"testing"}, collect(t, b, 1)[uri])
	assert.Equal(t, []string{"testing"}, collect(t, ob, 1)[uri])
}

func TestIntegration_TickCounter(t *testing.T) {
	srv := startPeer(t, server.Config{TickInterval: 20 * time.Millisecond})
	uri := "ws://" + srv.Addr() + "/"

	reg := registry.New(ws.DefaultConfig())
	defer reg.Close()
	b := netlayer.NewBridge(reg)
	require.True(t, b.InitiateConnection([]byte(uri)))

	got := collect(t, b, 3)[uri]
	assert.Equal(t, []string{"[0]", "[1]", "[2]"}, got)
}

func TestIntegration_SecurePublish(t *testing.T) {
	tsrv := httptest.NewTLSServer(nil)
	cert := tsrv.TLS.Certificates
	tsrv.Close()

	srv := startPeer(t, server.Config{
		TLS:        &tls.Config{Certificates: cert, MinVersion: tls.VersionTLS12},
		AllowPlain: true,
	})
	secure := "wss://" + srv.Addr() + "/"
	plain := "ws://" + srv.Addr() + "/"

	reg := registry.New(ws.DefaultConfig())
	defer reg.Close()
	b := netlayer.NewBridge(reg)
	require.True(t, b.InitiateConnection([]byte(secure)))
	require.True(t, b.InitiateConnection([]byte(plain)))

	codec, err := database.CBOR()
	require.NoError(t, err)
	snap := database.New().Snapshot()
	data, err := codec.Encode(snap)
	require.NoError(t, err)

	require.Equal(t, len(data), b.SendOutbound(data, []byte(secure)))

	got := collect(t, b, 2)
	require.Len(t, got[secure], 1)
	require.Len(t, got[plain], 1)
	for _, msg := range []string{got[secure][0], got[plain][0]} {
		decoded, err := codec.Decode([]byte(msg))
		require.NoError(t, err)
		assert.Equal(t, snap.AnalogInput, decoded.AnalogInput)
	}
}
