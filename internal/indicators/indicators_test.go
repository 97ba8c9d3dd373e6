package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestEMAConstant(t *testing.T) {
	out := EMA(constSeries(30, 10), 5)
	require.Len(t, out, 30)
	assert.Zero(t, out[3])
	for i := 4; i < 30; i++ {
		assert.InDelta(t, 10, out[i], 1e-9)
	}
}

func TestShortInputsReturnZeros(t *testing.T) {
	xs := []float64{1, 2, 3}

	assert.Equal(t, []float64{0, 0, 0}, EMA(xs, 5))
	assert.Equal(t, []float64{0, 0, 0}, RSI(xs, 14))
	assert.Equal(t, []float64{0, 0, 0}, ATR(xs, xs, xs, 14))

	dmi := ADX(xs, xs, xs, 14)
	assert.Len(t, dmi.ADX, 3)
	assert.Len(t, dmi.PlusDI, 3)

	assert.Empty(t, EMA(nil, 5))
}

func TestATRConstantRange(t *testing.T) {
	n := 40
	highs := constSeries(n, 101)
	lows := constSeries(n, 99)
	closes := constSeries(n, 100)

	out := ATR(highs, lows, closes, 14)
	require.Len(t, out, n)
	assert.Zero(t, out[0])
	assert.InDelta(t, 2, out[n-1], 1e-9)
}

func TestRSIMonotonic(t *testing.T) {
	up := make([]float64, 40)
	down := make([]float64, 40)
	for i := range up {
		up[i] = float64(i + 1)
		down[i] = float64(100 - i)
	}
	assert.InDelta(t, 100, RSI(up, 14)[39], 1e-9)
	assert.InDelta(t, 0, RSI(down, 14)[39], 1e-9)
}

func TestADXStrongUptrend(t *testing.T) {
	n := 80
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = 10 + float64(i)
		lows[i] = 8 + float64(i)
		closes[i] = 9 + float64(i)
	}
	dmi := ADX(highs, lows, closes, 14)
	last := n - 1
	assert.Greater(t, dmi.ADX[last], 50.0)
	assert.Greater(t, dmi.PlusDI[last], dmi.MinusDI[last])
}

func TestDonchianAndPriorChannel(t *testing.T) {
	highs := []float64{1, 3, 2, 5, 4}
	lows := []float64{0, 1, 1, 2, 3}

	ch := Donchian(highs, lows, 3)
	assert.Equal(t, 3.0, ch.Upper[2])
	assert.Equal(t, 5.0, ch.Upper[4])
	assert.Equal(t, 0.0, ch.Lower[2])
	assert.Equal(t, 1.0, ch.Lower[4])
	assert.Equal(t, 3.0, ch.Mid[4])

	up, lo, ok := PriorChannelAt(ch, 4)
	require.True(t, ok)
	assert.Equal(t, 5.0, up)
	assert.Equal(t, 1.0, lo)

	_, _, ok = PriorChannelAt(ch, 2)
	assert.False(t, ok)
}
