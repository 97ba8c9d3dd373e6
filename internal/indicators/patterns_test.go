package indicators

import (
	"testing"
	"time"

	"fxbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeikenAshi(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []models.Candle{
		{Time: t0, Open: 10, High: 12, Low: 9, Close: 11},
		{Time: t0.Add(time.Hour), Open: 11, High: 13, Low: 10, Close: 12},
	}
	ha := HeikenAshi(in)
	require.Len(t, ha, 2)

	assert.InDelta(t, 10.5, ha[0].Close, 1e-9)
	assert.InDelta(t, 10.5, ha[0].Open, 1e-9)
	assert.InDelta(t, 12, ha[0].High, 1e-9)
	assert.InDelta(t, 9, ha[0].Low, 1e-9)

	assert.InDelta(t, 11.5, ha[1].Close, 1e-9)
	assert.InDelta(t, 10.5, ha[1].Open, 1e-9)
	assert.InDelta(t, 13, ha[1].High, 1e-9)
	assert.InDelta(t, 10, ha[1].Low, 1e-9)
	assert.Equal(t, in[1].Time, ha[1].Time)
}

func TestSwingPoints(t *testing.T) {
	highs := []float64{1, 2, 5, 2, 1, 3, 7, 3, 1}
	lows := make([]float64, len(highs))
	for i, h := range highs {
		lows[i] = h - 0.5
	}

	sw := SwingPoints(highs, lows, 2, 2)
	require.Len(t, sw, 3)
	assert.Equal(t, Swing{Index: 2, Price: 5, Kind: SwingHigh}, sw[0])
	assert.Equal(t, Swing{Index: 4, Price: 0.5, Kind: SwingLow}, sw[1])
	assert.Equal(t, Swing{Index: 6, Price: 7, Kind: SwingHigh}, sw[2])

	last := LastSwings(sw, SwingHigh, 5)
	require.Len(t, last, 2)
	assert.Equal(t, 2, last[0].Index)
	assert.Equal(t, 6, last[1].Index)

	s, ok := LastSwingBefore(sw, SwingLow, 8)
	require.True(t, ok)
	assert.Equal(t, 4, s.Index)

	_, ok = LastSwingBefore(sw, SwingLow, 3)
	assert.False(t, ok)
}

func TestFitTrendline(t *testing.T) {
	line, ok := FitTrendline([]Swing{
		{Index: 0, Price: 1},
		{Index: 2, Price: 5},
		{Index: 4, Price: 9},
	})
	require.True(t, ok)
	assert.InDelta(t, 2, line.Slope, 1e-9)
	assert.InDelta(t, 1, line.Intercept, 1e-9)
	assert.InDelta(t, 1, line.R2, 1e-9)
	assert.InDelta(t, 11, line.PriceAt(5), 1e-9)

	_, ok = FitTrendline([]Swing{{Index: 1, Price: 1}})
	assert.False(t, ok)
}

func TestCandlePatterns(t *testing.T) {
	bear := models.Candle{Open: 10, High: 10.2, Low: 8.8, Close: 9}
	bullEngulf := models.Candle{Open: 8.9, High: 10.6, Low: 8.8, Close: 10.5}
	assert.True(t, BullishEngulfing(bear, bullEngulf))
	assert.False(t, BearishEngulfing(bear, bullEngulf))

	name, ok := TriggerCandle(bear, bullEngulf, models.SideBuy)
	assert.True(t, ok)
	assert.Equal(t, "bullish_engulfing", name)

	hammer := models.Candle{Open: 10, High: 10.3, Low: 9, Close: 10.2}
	assert.True(t, Hammer(hammer))
	assert.False(t, ShootingStar(hammer))

	star := models.Candle{Open: 10.2, High: 11.2, Low: 9.9, Close: 10}
	assert.True(t, ShootingStar(star))

	_, ok = TriggerCandle(bear, hammer, models.SideSell)
	assert.False(t, ok)

	assert.True(t, InsideBar(
		models.Candle{High: 12, Low: 8},
		models.Candle{High: 11, Low: 9},
	))
}
