package runner

import (
	"fmt"

	"fxbot/internal/helper"
	"fxbot/internal/models"
)

// calcVolume считает объём в лотах, исходя из:
//   - денежного риска balance * riskPct / 100,
//   - дистанции до стопа в цене,
//   - стоимости тика на один лот.
//
// PnL(валюта счёта) ≈ riskDist / tickSize * tickValue * volume
func calcVolume(balance, riskPct, riskDist float64, info models.SymbolInfo) (float64, error) {
	if balance <= 0 {
		return 0, fmt.Errorf("balance %.2f <= 0", balance)
	}
	if riskPct <= 0 {
		return 0, fmt.Errorf("risk_pct %.2f <= 0", riskPct)
	}
	if riskDist <= 0 {
		return 0, fmt.Errorf("нулевой стоп")
	}
	if info.TickSize <= 0 || info.TickValue <= 0 {
		return 0, fmt.Errorf("%s: tick_size=%g tick_value=%g", info.Name, info.TickSize, info.TickValue)
	}

	riskMoney := balance * riskPct / 100
	lossPerLot := riskDist / info.TickSize * info.TickValue
	vol := riskMoney / lossPerLot
	if !helper.IsFinite(vol) || vol <= 0 {
		return 0, fmt.Errorf("volume invalid: %.8f", vol)
	}

	// вниз до шага, потом в рамки брокера
	vol = helper.FloorToStep(vol, info.VolumeStep)
	vol = helper.Clamp(vol, info.VolumeMin, info.VolumeMax)
	if vol <= 0 {
		return 0, fmt.Errorf("ноль после округления: vol=%.8f", vol)
	}
	return vol, nil
}
