package netlayer_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/omochice/bsc-netlayer/internal/netlayer"
	"github.com/omochice/bsc-netlayer/internal/registry"
	"github.com/omochice/bsc-netlayer/internal/transport/ws"
	"github.com/omochice/bsc-netlayer/pkg/wserr"
)

var fastRetry = netlayer.RetryPolicy{Attempts: 3, Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func countingBridge(t *testing.T) (*netlayer.Bridge, *atomic.Int32) {
	t.Helper()
	var failures atomic.Int32
	sink := netlayer.StatusFunc(func(_ string, s netlayer.Status) {
		if s.Kind == netlayer.StatusError {
			failures.Add(1)
		}
	})
	reg := registry.New(ws.DefaultConfig())
	t.Cleanup(func() { _ = reg.Close() })
	return netlayer.NewBridge(reg, netlayer.WithStatusSink(sink)), &failures
}

func TestInitiateWithRetry_Succeeds(t *testing.T) {
	uri := newEchoServer(t)
	b, _ := countingBridge(t)

	require.NoError(t, b.InitiateWithRetry(context.Background(), []byte(uri), fastRetry))
	s, _ := b.Status(uri)
	assert.Equal(t, netlayer.StatusConnected, s.Kind)
}

func TestInitiateWithRetry_GivesUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	b, _ := countingBridge(t)
	err = b.InitiateWithRetry(context.Background(), []byte("ws://"+addr+"/"), fastRetry)
	require.Error(t, err)
	assert.Equal(t, wserr.CodeConnectionRefused, wserr.CodeOf(err))
}

func TestInitiateWithRetry_PermanentFailureStopsEarly(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	reg := registry.New(ws.DefaultConfig())
	t.Cleanup(func() { _ = reg.Close() })
	b := netlayer.NewBridge(reg, netlayer.WithLogger(zap.New(core)))

	err := b.InitiateWithRetry(context.Background(), []byte("http://localhost/"), fastRetry)
	require.Error(t, err)
	assert.Equal(t, wserr.CodeUnsupportedScheme, wserr.CodeOf(err))
	assert.Zero(t, logs.FilterMessage("retrying connection").Len())
}

func TestInitiateWithRetry_RecordsEachFailure(t *testing.T) {
	b, failures := countingBridge(t)

	err := b.InitiateWithRetry(context.Background(), []byte("ws://127.0.0.1:1/"), fastRetry)
	require.Error(t, err)
	assert.Equal(t, int32(1), failures.Load(), "repeated identical status is reported once")
}

func TestReconnect(t *testing.T) {
	uri := newEchoServer(t)
	b, _ := countingBridge(t)
	require.True(t, b.InitiateConnection([]byte(uri)))

	require.NoError(t, b.Reconnect(context.Background(), []byte(uri), fastRetry))
	assert.Equal(t, 7, b.SendOutbound([]byte("testing"), []byte(uri)))
}
