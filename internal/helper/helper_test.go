package helper

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrailKey(t *testing.T) {
	key := TrailKey("XAUUSD", 123456)
	assert.Equal(t, "XAUUSD:123456", key)

	sym, ticket, ok := SplitTrailKey(key)
	require.True(t, ok)
	assert.Equal(t, "XAUUSD", sym)
	assert.Equal(t, int64(123456), ticket)

	for _, bad := range []string{"", "XAUUSD", ":1", "XAUUSD:", "XAUUSD:abc"} {
		_, _, ok := SplitTrailKey(bad)
		assert.False(t, ok, bad)
	}
}

func TestRounding(t *testing.T) {
	tests := []struct {
		name     string
		px, tick float64
		down, up float64
	}{
		{name: "gold", px: 1994.567, tick: 0.01, down: 1994.56, up: 1994.57},
		{name: "fx on grid", px: 1.0932, tick: 0.00001, down: 1.0932, up: 1.0932},
		{name: "float noise", px: 178.29999999999998, tick: 0.01, down: 178.3, up: 178.3},
		{name: "index", px: 15123.4, tick: 0.25, down: 15123.25, up: 15123.5},
		{name: "no tick", px: 1.23456, tick: 0, down: 1.23456, up: 1.23456},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.down, RoundDownToTick(tt.px, tt.tick), 1e-9)
			assert.InDelta(t, tt.up, RoundUpToTick(tt.px, tt.tick), 1e-9)
		})
	}
}

func TestFloorToStep(t *testing.T) {
	assert.InDelta(t, 0.16, FloorToStep(0.16666, 0.01), 1e-12)
	assert.InDelta(t, 0.3, FloorToStep(0.3, 0.1), 1e-12)
	assert.InDelta(t, 0, FloorToStep(0.009, 0.01), 1e-12)
	assert.Equal(t, 0.5, FloorToStep(0.5, 0))
}

func TestClampAndSlices(t *testing.T) {
	assert.Equal(t, 0.01, Clamp(0, 0.01, 100))
	assert.Equal(t, 100.0, Clamp(250, 0.01, 100))
	// без потолка
	assert.Equal(t, 250.0, Clamp(250, 0.01, 0))

	xs := []float64{3, -1, 7, 2}
	assert.Equal(t, 7.0, MaxSlice(xs))
	assert.Equal(t, -1.0, MinSlice(xs))
	assert.Zero(t, MaxSlice(nil))
	assert.Zero(t, MinSlice(nil))

	assert.True(t, IsFinite(1))
	assert.False(t, IsFinite(math.NaN()))
	assert.False(t, IsFinite(math.Inf(-1)))
}
