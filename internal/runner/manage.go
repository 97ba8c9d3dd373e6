package runner

import (
	"context"
	"fmt"
	"time"

	"fxbot/internal/events"
	"fxbot/internal/helper"
	"fxbot/internal/models"
	"fxbot/pkg/logger"
)

const minImproveR = 0.10

// decideManage принимает одно решение на закрытый бар (time-stop, BE, partial, lock,
// ATR-трейл). Бар, который уже учтён, ничего не меняет. Флаги разовых правил
// здесь не ставятся: это делает manage после ответа брокера.
func decideManage(st *models.PositionTrailState, mc models.ManageConfig, bar models.Candle, atr float64) models.TrailDecision {
	if st.RiskDist <= 0 || st.Entry <= 0 {
		return models.TrailDecision{}
	}
	if !bar.Time.After(st.LastBar) {
		return models.TrailDecision{}
	}
	st.LastBar = bar.Time
	st.Bars++
	st.UpdateMFE(bar.High, bar.Low)
	return nextAction(st, mc, atr)
}

func nextAction(st *models.PositionTrailState, mc models.ManageConfig, atr float64) models.TrailDecision {
	R := st.RiskDist
	sign := st.Side.Sign()
	improvesEnough := func(cand float64) bool {
		if st.SL == 0 {
			return true
		}
		return (cand-st.SL)*sign >= minImproveR*R
	}
	mfeR := st.MFER()

	// --- тайм-стоп ---
	if mc.TimeStopBars > 0 && st.Bars >= mc.TimeStopBars && mfeR < mc.TimeStopMinMFER {
		return models.TrailDecision{
			Step:   models.StepTimeStop,
			Close:  true,
			Reason: fmt.Sprintf("TIME_STOP %d bars, mfe=%.2fR", st.Bars, mfeR),
		}
	}

	// --- 1) безубыток ---
	if !st.MovedToBE && mc.BETriggerR > 0 && mfeR >= mc.BETriggerR {
		cand := st.Entry + sign*mc.BEOffsetR*R
		if improvesEnough(cand) {
			return models.TrailDecision{Step: models.StepBE, MoveSL: true, NewSL: cand, Reason: fmt.Sprintf("BE@%.2fR", mc.BETriggerR)}
		}
	}

	// --- PARTIAL ---
	if mc.PartialEnabled && !st.TookPartial && mfeR >= mc.PartialTriggerR && st.Volume > 0 && mc.PartialCloseFrac > 0 {
		return models.TrailDecision{
			Step:      models.StepPartial,
			CloseSize: st.Volume * mc.PartialCloseFrac,
			Reason:    fmt.Sprintf("PARTIAL@%.2fR (%.0f%%)", mc.PartialTriggerR, mc.PartialCloseFrac*100),
		}
	}

	// --- 2) фиксация прибыли ---
	if !st.LockedProfit && mc.LockTriggerR > 0 && mfeR >= mc.LockTriggerR {
		cand := st.Entry + sign*mc.LockOffsetR*R
		if improvesEnough(cand) {
			return models.TrailDecision{
				Step:   models.StepLock,
				MoveSL: true,
				NewSL:  cand,
				Reason: fmt.Sprintf("LOCK@%.2fR->%.2fR", mc.LockTriggerR, mc.LockOffsetR),
			}
		}
	}

	// --- 3) ATR-трейл от лучшей цены ---
	if mc.TrailATRMult > 0 && atr > 0 && mfeR >= mc.BETriggerR {
		cand := st.MFE - sign*mc.TrailATRMult*atr
		if improvesEnough(cand) {
			return models.TrailDecision{Step: models.StepTrail, MoveSL: true, NewSL: cand, Reason: fmt.Sprintf("ATR_TRAIL x%.1f", mc.TrailATRMult)}
		}
	}

	return models.TrailDecision{}
}

// manage проводит одно решение по позиции через брокера.
func (b *Bot) manage(ctx context.Context, pos models.Position, bar models.Candle, atr float64) {
	st := b.trailState(ctx, pos, bar)
	if st == nil {
		return
	}
	st.Volume = pos.Volume
	st.SL = pos.SL
	st.TP = pos.TP

	dec := decideManage(st, b.manageRules, bar, atr)
	if dec.CloseSize > 0 && !b.partialFits(pos.Volume, dec.CloseSize) {
		// объём уже не делится: правило снимаем, бар отдаём следующему
		logger.Info("[%s] #%d partial %.2f skipped: volume %.2f too small", b.cfg.Name, pos.Ticket, dec.CloseSize, pos.Volume)
		st.Done(models.StepPartial)
		dec = nextAction(st, b.manageRules, atr)
	}
	switch {
	case dec.Close:
		if err := b.broker.ClosePosition(ctx, pos.Ticket, pos.Volume); err != nil {
			logger.Error("[%s] close #%d: %v", b.cfg.Name, pos.Ticket, err)
			return
		}
		b.notifier.Sendf("🕒 [%s] %s #%d закрыта | %s", b.cfg.Name, pos.Symbol, pos.Ticket, dec.Reason)

	case dec.CloseSize > 0:
		size := helper.FloorToStep(dec.CloseSize, b.info.VolumeStep)
		if err := b.broker.ClosePosition(ctx, pos.Ticket, size); err != nil {
			logger.Error("[%s] partial #%d: %v", b.cfg.Name, pos.Ticket, err)
			return
		}
		st.Volume -= size
		st.Done(dec.Step)
		b.notifier.Sendf("💰 [%s] %s #%d частичная фиксация %.2f | %s", b.cfg.Name, pos.Symbol, pos.Ticket, size, dec.Reason)

	case dec.MoveSL:
		newSL := helper.RoundUpToTick(dec.NewSL, b.info.TickSize)
		if st.Side == models.SideSell {
			newSL = helper.RoundDownToTick(dec.NewSL, b.info.TickSize)
		}
		if err := b.broker.ModifySLTP(ctx, pos.Ticket, newSL, pos.TP); err != nil {
			logger.Error("[%s] modify #%d: %v", b.cfg.Name, pos.Ticket, err)
			return
		}
		st.SL = newSL
		st.Done(dec.Step)
		b.notifier.Sendf("🛡 [%s] %s #%d SL -> %.5f | %s", b.cfg.Name, pos.Symbol, pos.Ticket, newSL, dec.Reason)

	default:
		return
	}

	logger.Info("[%s] #%d manage: %s", b.cfg.Name, pos.Ticket, dec.Reason)
	b.publish(ctx, events.TradeModified, map[string]any{
		"ticket": pos.Ticket,
		"reason": dec.Reason,
		"sl":     st.SL,
		"volume": st.Volume,
		"closed": dec.Close,
	})
}

// partialFits: и закрываемая часть, и остаток не меньше минимального лота.
func (b *Bot) partialFits(volume, closeSize float64) bool {
	size := helper.FloorToStep(closeSize, b.info.VolumeStep)
	return size >= b.info.VolumeMin && volume-size >= b.info.VolumeMin-1e-9
}

// trailState достаёт состояние сопровождения; после рестарта собирает его
// из журнала или, если сделки там нет, из самой позиции. Счётчик баров
// восстанавливается от входа, текущий бар остаётся необработанным.
func (b *Bot) trailState(ctx context.Context, pos models.Position, bar models.Candle) *models.PositionTrailState {
	key := helper.TrailKey(pos.Symbol, pos.Ticket)

	b.mu.Lock()
	st := b.trail[key]
	b.mu.Unlock()
	if st != nil {
		return st
	}

	st = &models.PositionTrailState{
		Ticket:   pos.Ticket,
		Symbol:   pos.Symbol,
		Side:     pos.Side,
		Entry:    pos.Entry,
		SL:       pos.SL,
		TP:       pos.TP,
		Volume:   pos.Volume,
		TickSz:   b.info.TickSize,
		MFE:      pos.Entry,
		OpenedAt: pos.OpenedAt,
	}
	elapsed := 0
	if t, err := b.journal.ByTicket(ctx, pos.Ticket); err == nil {
		st.RiskDist = t.RiskDist
		elapsed = barsSince(t.BarTime, bar.Time, b.tf, false)
	} else {
		if pos.SL > 0 {
			st.RiskDist = (pos.Entry - pos.SL) * pos.Side.Sign()
		}
		elapsed = barsSince(pos.OpenedAt, bar.Time, b.tf, true)
	}
	if st.RiskDist <= 0 {
		// без стопа нечего сопровождать
		return nil
	}
	if elapsed > 0 {
		st.Bars = elapsed - 1
		st.LastBar = bar.Time.Add(-b.tf.Duration())
	}

	b.mu.Lock()
	b.trail[key] = st
	b.mu.Unlock()
	return st
}

// barsSince: сколько баров позиции прошло по бар at включительно.
// from: время сигнального бара, либо (fromFill) время исполнения, которое
// приходится на первый бар позиции.
func barsSince(from, at time.Time, tf models.Timeframe, fromFill bool) int {
	d := tf.Duration()
	if d <= 0 || from.IsZero() || at.Before(from) && !fromFill {
		return 0
	}
	diff := at.Sub(from)
	if !fromFill {
		return int(diff / d)
	}
	if diff <= 0 {
		if diff > -d {
			return 1
		}
		return 0
	}
	return int((diff+d-1)/d) + 1
}
