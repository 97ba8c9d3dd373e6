package indicators

import (
	"math"

	"fxbot/internal/models"
)

// HeikenAshi строит сглаженные свечи; время и объём берутся из исходных.
func HeikenAshi(candles []models.Candle) []models.Candle {
	out := make([]models.Candle, len(candles))
	for i, c := range candles {
		haClose := (c.Open + c.High + c.Low + c.Close) / 4
		var haOpen float64
		if i == 0 {
			haOpen = (c.Open + c.Close) / 2
		} else {
			haOpen = (out[i-1].Open + out[i-1].Close) / 2
		}
		out[i] = models.Candle{
			Time:   c.Time,
			Open:   haOpen,
			High:   math.Max(c.High, math.Max(haOpen, haClose)),
			Low:    math.Min(c.Low, math.Min(haOpen, haClose)),
			Close:  haClose,
			Volume: c.Volume,
		}
	}
	return out
}
