package strategy

import (
	"fmt"

	"fxbot/internal/indicators"
	"fxbot/internal/models"
)

// trendline_break: пробой наклонной линии через последние свинги.
// BUY: нисходящая линия по swing high пробита вверх на последнем баре,
// SELL: восходящая по swing low пробита вниз.
var trendlineDefaults = Params{
	"line_points": 3,
	"min_r2":      0.6,
	"rsi_mid":     50,
	"atr_pct":     0.001,
}

func trendlineChain() Chain {
	return Chain{
		Name:      "trendline_break",
		Direction: trendlineDirection,
		Gates: []Gate{
			{Name: "line_fit", Check: lineFit},
			{Name: "rsi_confirm", Check: rsiConfirm},
			{Name: "ema_filter", Check: emaSide(trendEMA)},
			{Name: "atr_pct_min", Check: atrPctMin},
		},
	}
}

func trendlineWarmup(p Params) int {
	return maxInt(p.Int("trend"), p.Int("rsi_period")+1, p.Int("atr_period")+1) + 10
}

// sideLine fits the line the given side trades against.
func sideLine(s *Snapshot, side models.Side) (indicators.Trendline, bool) {
	k := s.Params.Int("line_points")
	if k < 2 {
		k = 2
	}
	kind := indicators.SwingHigh
	if side == models.SideSell {
		kind = indicators.SwingLow
	}
	pts := indicators.LastSwings(s.Swings, kind, k)
	if len(pts) < k {
		return indicators.Trendline{}, false
	}
	line, ok := indicators.FitTrendline(pts)
	if !ok {
		return indicators.Trendline{}, false
	}
	if line.Slope*side.Sign() >= 0 {
		// для BUY нужна нисходящая линия, для SELL восходящая
		return indicators.Trendline{}, false
	}
	return line, true
}

func crossed(s *Snapshot, line indicators.Trendline, side models.Side) bool {
	if s.Last < 1 {
		return false
	}
	now := (s.Close() - line.PriceAt(s.Last)) * side.Sign()
	before := (s.back(s.Closes, 1) - line.PriceAt(s.Last-1)) * side.Sign()
	return now > 0 && before <= 0
}

func trendlineDirection(s *Snapshot) (models.Side, models.GateResult) {
	for _, side := range []models.Side{models.SideBuy, models.SideSell} {
		line, ok := sideLine(s, side)
		if !ok || !crossed(s, line, side) {
			continue
		}
		r := beyond(side, s.Close(), line.PriceAt(s.Last), s.LastATR())
		r.Detail = fmt.Sprintf("line %d..%d slope=%.6f", line.From, line.To, line.Slope)
		return side, r
	}
	return models.SideNone, models.GateResult{Detail: "no line crossed"}
}

func lineFit(s *Snapshot, side models.Side) models.GateResult {
	line, ok := sideLine(s, side)
	if !ok {
		return notReady("no line")
	}
	return minGate(line.R2, s.Params.Get("min_r2"))
}

func rsiConfirm(s *Snapshot, side models.Side) models.GateResult {
	rsi := s.at(s.RSI)
	if rsi == 0 {
		return notReady("rsi warmup")
	}
	mid := s.Params.Get("rsi_mid")
	r := minGate(rsi, mid)
	if side == models.SideSell {
		r = maxGate(rsi, mid)
	}
	// ровно на середине подтверждения нет
	r.Passed = r.Passed && rsi != mid
	return r
}
