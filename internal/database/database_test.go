package database_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/bsc-netlayer/internal/database"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNew(t *testing.T) {
	db := database.New()
	snap := db.Snapshot()

	assert.Equal(t, uint32(389999), snap.Device.Instance)
	assert.Equal(t, "Device Rainbow", snap.Device.ObjectName)
	assert.Equal(t, uint32(0), snap.AnalogInput.Instance)
	assert.Equal(t, "AnalogInput Bronze", snap.AnalogInput.ObjectName)
	assert.Equal(t, float32(1.001), snap.AnalogInput.PresentValue)
}

func TestSetup_NextColor(t *testing.T) {
	db := database.New()
	db.Setup()
	assert.Equal(t, "AnalogInput Chartreuse", db.Snapshot().AnalogInput.ObjectName)
}

func TestLoop_OncePerSecond(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	db := database.New(database.WithClock(clock.Now))

	assert.True(t, db.Loop(), "first loop steps immediately")
	assert.False(t, db.Loop())

	clock.Advance(500 * time.Millisecond)
	assert.False(t, db.Loop())

	clock.Advance(500 * time.Millisecond)
	assert.True(t, db.Loop())

	assert.InDelta(t, 1.001*3, db.Snapshot().AnalogInput.PresentValue, 1e-4)
}

func TestCodecs(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 123456789, time.UTC)}
	db := database.New(database.WithClock(clock.Now))
	db.Loop()
	want := db.Snapshot()

	for _, name := range []string{"cbor", "proto"} {
		t.Run(name, func(t *testing.T) {
			c, err := database.NewCodec(name)
			require.NoError(t, err)
			assert.NotEmpty(t, c.ContentType())

			data, err := c.Encode(want)
			require.NoError(t, err)

			got, err := c.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, want.Device, got.Device)
			assert.Equal(t, want.AnalogInput, got.AnalogInput)
			assert.True(t, want.Timestamp.Equal(got.Timestamp), "timestamp %v != %v", got.Timestamp, want.Timestamp)
		})
	}
}

func TestCodec_Deterministic(t *testing.T) {
	snap := database.New().Snapshot()
	c, err := database.CBOR()
	require.NoError(t, err)

	a, err := c.Encode(snap)
	require.NoError(t, err)
	b, err := c.Encode(snap)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewCodec_Unknown(t *testing.T) {
	_, err := database.NewCodec("xml")
	assert.Error(t, err)
}

func TestProtoDecode_Invalid(t *testing.T) {
	_, err := database.Proto().Decode([]byte{0xff, 0xff})
	assert.Error(t, err)
}
