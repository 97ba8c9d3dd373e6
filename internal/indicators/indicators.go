// Package indicators holds the series math shared by every strategy.
// All functions take oldest-first slices and return slices of the same
// length with zeros in the warm-up region.
package indicators

import (
	talib "github.com/markcheno/go-talib"
)

// EMA: экспоненциальная средняя, первая точка засевается SMA.
func EMA(closes []float64, n int) []float64 {
	if n <= 0 || len(closes) < n {
		return make([]float64, len(closes))
	}
	return talib.Ema(closes, n)
}

func SMA(closes []float64, n int) []float64 {
	if n <= 0 || len(closes) < n {
		return make([]float64, len(closes))
	}
	return talib.Sma(closes, n)
}

// ATR по Уайлдеру; первое значение на индексе n.
func ATR(highs, lows, closes []float64, n int) []float64 {
	if n <= 0 || !sameLen(highs, lows, closes) || len(closes) <= n {
		return make([]float64, len(closes))
	}
	return talib.Atr(highs, lows, closes, n)
}

func RSI(closes []float64, n int) []float64 {
	if n <= 1 || len(closes) <= n {
		return make([]float64, len(closes))
	}
	return talib.Rsi(closes, n)
}

// DMI: ADX и направленные индикаторы.
type DMI struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

func ADX(highs, lows, closes []float64, n int) DMI {
	size := len(closes)
	if n <= 1 || !sameLen(highs, lows, closes) || size < 2*n+1 {
		return DMI{
			ADX:     make([]float64, size),
			PlusDI:  make([]float64, size),
			MinusDI: make([]float64, size),
		}
	}
	return DMI{
		ADX:     talib.Adx(highs, lows, closes, n),
		PlusDI:  talib.PlusDI(highs, lows, closes, n),
		MinusDI: talib.MinusDI(highs, lows, closes, n),
	}
}

// Channel: канал Дончиана по последним n барам включительно.
type Channel struct {
	Period int
	Upper  []float64
	Lower  []float64
	Mid    []float64
}

func Donchian(highs, lows []float64, n int) Channel {
	size := len(highs)
	ch := Channel{Period: n}
	if n <= 0 || len(lows) != size || size < n {
		ch.Upper = make([]float64, size)
		ch.Lower = make([]float64, size)
		ch.Mid = make([]float64, size)
		return ch
	}
	ch.Upper = talib.Max(highs, n)
	ch.Lower = talib.Min(lows, n)
	ch.Mid = make([]float64, size)
	for i := n - 1; i < size; i++ {
		ch.Mid[i] = (ch.Upper[i] + ch.Lower[i]) / 2
	}
	return ch
}

// PriorChannelAt: канал из n баров ДО бара i (пробой сравнивается с ним).
func PriorChannelAt(ch Channel, i int) (upper, lower float64, ok bool) {
	j := i - 1
	if j < ch.Period-1 || j >= len(ch.Upper) {
		return 0, 0, false
	}
	return ch.Upper[j], ch.Lower[j], true
}

func sameLen(a, b, c []float64) bool {
	return len(a) == len(b) && len(b) == len(c)
}
