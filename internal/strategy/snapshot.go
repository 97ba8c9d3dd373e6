package strategy

import (
	"fxbot/internal/indicators"
	"fxbot/internal/models"
)

// Snapshot: все производные ряды, посчитанные один раз на оценку.
// Last указывает на последний закрытый бар.
type Snapshot struct {
	Candles []models.Candle
	Closes  []float64
	Highs   []float64
	Lows    []float64

	EMAFast  []float64
	EMASlow  []float64
	EMATrend []float64
	ATR      []float64
	RSI      []float64
	DMI      indicators.DMI
	Channel  indicators.Channel
	HA       []models.Candle
	Swings   []indicators.Swing

	Last   int
	Params Params
}

func NewSnapshot(candles []models.Candle, p Params) *Snapshot {
	n := len(candles)
	s := &Snapshot{
		Candles: candles,
		Closes:  make([]float64, n),
		Highs:   make([]float64, n),
		Lows:    make([]float64, n),
		Last:    n - 1,
		Params:  p,
	}
	for i, c := range candles {
		s.Closes[i] = c.Close
		s.Highs[i] = c.High
		s.Lows[i] = c.Low
	}

	s.EMAFast = indicators.EMA(s.Closes, p.Int("fast"))
	s.EMASlow = indicators.EMA(s.Closes, p.Int("slow"))
	s.EMATrend = indicators.EMA(s.Closes, p.Int("trend"))
	s.ATR = indicators.ATR(s.Highs, s.Lows, s.Closes, p.Int("atr_period"))
	s.RSI = indicators.RSI(s.Closes, p.Int("rsi_period"))
	s.DMI = indicators.ADX(s.Highs, s.Lows, s.Closes, p.Int("adx_period"))
	s.Channel = indicators.Donchian(s.Highs, s.Lows, p.Int("period"))
	s.HA = indicators.HeikenAshi(candles)
	s.Swings = indicators.SwingPoints(s.Highs, s.Lows, p.Int("pivot_left"), p.Int("pivot_right"))
	return s
}

// at reads a series at Last, or 0 when the series is shorter.
func (s *Snapshot) at(xs []float64) float64 {
	return s.back(xs, 0)
}

// back reads the value k bars before Last.
func (s *Snapshot) back(xs []float64, k int) float64 {
	i := s.Last - k
	if i < 0 || i >= len(xs) {
		return 0
	}
	return xs[i]
}

func (s *Snapshot) Close() float64 { return s.at(s.Closes) }

func (s *Snapshot) Bar() models.Candle {
	if s.Last < 0 {
		return models.Candle{}
	}
	return s.Candles[s.Last]
}

func (s *Snapshot) Prev() models.Candle {
	if s.Last < 1 {
		return models.Candle{}
	}
	return s.Candles[s.Last-1]
}

func (s *Snapshot) LastATR() float64 { return s.at(s.ATR) }
