package helper

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// TrailKey returns the trail state key "symbol:ticket".
func TrailKey(symbol string, ticket int64) string {
	return symbol + ":" + strconv.FormatInt(ticket, 10)
}

func SplitTrailKey(key string) (symbol string, ticket int64, ok bool) {
	i := strings.LastIndexByte(key, ':')
	if i <= 0 || i >= len(key)-1 {
		return "", 0, false
	}
	t, err := strconv.ParseInt(key[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return key[:i], t, true
}

func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	d := decimal.NewFromFloat(px).Div(decimal.NewFromFloat(tick)).Add(decimal.New(1, -9)).Floor()
	return d.Mul(decimal.NewFromFloat(tick)).InexactFloat64()
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	d := decimal.NewFromFloat(px).Div(decimal.NewFromFloat(tick)).Sub(decimal.New(1, -9)).Ceil()
	return d.Mul(decimal.NewFromFloat(tick)).InexactFloat64()
}

// FloorToStep floors a volume to the broker lot step.
func FloorToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	n := decimal.NewFromFloat(v).Div(decimal.NewFromFloat(step)).Add(decimal.New(1, -9)).Floor()
	return n.Mul(decimal.NewFromFloat(step)).InexactFloat64()
}

func Clamp(v, lo, hi float64) float64 {
	if hi > 0 && v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

func MaxSlice(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, v := range xs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func MinSlice(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, v := range xs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
