package strategy

import (
	"fmt"

	"fxbot/internal/models"
)

// heiken_trend: цвет последних HA-свечей без противоположной тени,
// подтверждённый EMA, ADX и DI.
var heikenDefaults = Params{
	"adx_min": 20,
	"ha_bars": 2,
	"rsi_ob":  70,
	"rsi_os":  30,
}

func heikenChain() Chain {
	return Chain{
		Name:      "heiken_trend",
		Direction: heikenDirection,
		Gates: []Gate{
			{Name: "ema_side", Check: emaSide(fastEMA)},
			{Name: "adx_min", Check: adxMin},
			{Name: "di_align", Check: diAlign},
			{Name: "rsi_not_extreme", Check: rsiNotExtreme},
		},
	}
}

func heikenWarmup(p Params) int {
	return maxInt(p.Int("fast"), 2*p.Int("adx_period")+1, p.Int("rsi_period")+1, p.Int("ha_bars")) + 10
}

func heikenDirection(s *Snapshot) (models.Side, models.GateResult) {
	need := s.Params.Int("ha_bars")
	if need < 1 {
		need = 1
	}
	if s.Last+1 < need || len(s.HA) <= s.Last {
		return models.SideNone, notReady("ha warmup")
	}
	var bull, bear int
	for i := s.Last - need + 1; i <= s.Last; i++ {
		ha := s.HA[i]
		lo, hi := min(ha.Open, ha.Close), max(ha.Open, ha.Close)
		if ha.Close > ha.Open && ha.Low >= lo {
			bull++
		}
		if ha.Close < ha.Open && ha.High <= hi {
			bear++
		}
	}
	r := models.GateResult{Threshold: float64(need)}
	switch need {
	case bull:
		r.Value, r.Margin = float64(bull), 1
		r.Detail = fmt.Sprintf("%d bull HA without lower wick", bull)
		return models.SideBuy, r
	case bear:
		r.Value, r.Margin = float64(bear), 1
		r.Detail = fmt.Sprintf("%d bear HA without upper wick", bear)
		return models.SideSell, r
	}
	r.Value = float64(max(bull, bear))
	r.Margin = norm(r.Value-r.Threshold, r.Threshold)
	return models.SideNone, r
}

// diAlign: +DI над -DI для BUY, наоборот для SELL. Margin: доля от суммы DI.
func diAlign(s *Snapshot, side models.Side) models.GateResult {
	plus, minus := s.at(s.DMI.PlusDI), s.at(s.DMI.MinusDI)
	sum := plus + minus
	if sum <= 0 {
		return notReady("di warmup")
	}
	d := (plus - minus) * side.Sign()
	return models.GateResult{Passed: d > 0, Value: d, Threshold: 0, Margin: d / sum,
		Detail: fmt.Sprintf("+di=%.2f -di=%.2f", plus, minus)}
}

func rsiNotExtreme(s *Snapshot, side models.Side) models.GateResult {
	rsi := s.at(s.RSI)
	if rsi == 0 {
		return notReady("rsi warmup")
	}
	if side == models.SideSell {
		return minGate(rsi, s.Params.Get("rsi_os"))
	}
	return maxGate(rsi, s.Params.Get("rsi_ob"))
}
