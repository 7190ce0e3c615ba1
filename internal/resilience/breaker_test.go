package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBreakers_TripsAfterConsecutiveFailures(t *testing.T) {
	b := New(zap.NewNop(), Config{MaxRequests: 1, Interval: 0, Timeout: time.Minute})

	failing := errors.New("dial failed")
	for i := 0; i < 3; i++ {
		err := b.Execute("10.0.0.5:4840", func() error { return failing })
		assert.ErrorIs(t, err, failing)
	}

	assert.True(t, b.IsOpen("10.0.0.5:4840"))

	err := b.Execute("10.0.0.5:4840", func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreakers_SeparatePerSessionKey(t *testing.T) {
	b := New(zap.NewNop(), DefaultConfig())

	require.NoError(t, b.Execute("host-a:4840", func() error { return nil }))
	assert.False(t, b.IsOpen("host-b:4840"))
}

func TestBreakers_Remove(t *testing.T) {
	b := New(zap.NewNop(), DefaultConfig())
	_ = b.Execute("host:4840", func() error { return nil })
	b.Remove("host:4840")
	assert.False(t, b.IsOpen("host:4840"))
}
