// Package analysis re-runs the strategy gates against losing trades to show
// which filters let them through and by how much.
package analysis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fxbot/internal/broker"
	"fxbot/internal/journal"
	"fxbot/internal/models"
	"fxbot/internal/strategy"
	"fxbot/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultNarrow = 0.1
	workers       = 4
)

// ParamsFunc returns the configured strategy params of a bot, nil when unknown.
type ParamsFunc func(bot string) map[string]float64

type Analyzer struct {
	journal journal.Store
	data    broker.MarketData
	params  ParamsFunc
	narrow  float64
	now     func() time.Time
}

func New(store journal.Store, data broker.MarketData, params ParamsFunc, narrow float64) *Analyzer {
	if narrow <= 0 {
		narrow = DefaultNarrow
	}
	if params == nil {
		params = func(string) map[string]float64 { return nil }
	}
	return &Analyzer{
		journal: store,
		data:    data,
		params:  params,
		narrow:  narrow,
		now:     time.Now,
	}
}

// Run анализирует убыточные сделки по фильтру. Ошибка по одной сделке
// попадает в её строку отчёта и не останавливает прогон.
func (a *Analyzer) Run(ctx context.Context, f journal.Filter) (*Report, error) {
	losses, err := a.journal.Losses(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("load losses: %w", err)
	}

	rep := &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: a.now().UTC(),
		Filter:      filterView(f),
		Narrow:      a.narrow,
		Trades:      make([]TradeReport, len(losses)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, t := range losses {
		g.Go(func() error {
			rep.Trades[i] = a.analyzeTrade(gctx, t)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep.Gates = gateStats(rep.Trades)
	rep.Strategies = strategyStats(rep.Trades)
	logger.Info("[ANALYSIS] run %s: %d losses", rep.RunID, len(rep.Trades))
	return rep, nil
}

func (a *Analyzer) analyzeTrade(ctx context.Context, t *models.Trade) TradeReport {
	tr := TradeReport{
		Ticket:    t.Ticket,
		Bot:       t.Bot,
		Strategy:  t.Strategy,
		Symbol:    t.Symbol,
		Timeframe: string(t.Timeframe),
		Side:      string(t.Side),
		Entry:     t.Entry,
		SL:        t.SL,
		Exit:      t.ExitPrice,
		Profit:    t.Profit,
		R:         t.R(),
		BarTime:   t.BarTime,
		OpenedAt:  t.OpenedAt,
		ClosedAt:  t.ClosedAt,
		Reason:    t.ExitReason,
	}

	eng, err := strategy.NewEngine(t.Strategy, a.params(t.Bot))
	if err != nil {
		tr.Error = err.Error()
		return tr
	}

	bars, err := a.signalBars(ctx, t, strategy.Window(eng))
	if err != nil {
		tr.Error = err.Error()
		return tr
	}

	_, full, err := eng.Evaluate(t.Symbol, t.Timeframe, bars, true)
	if err != nil {
		tr.Error = err.Error()
		return tr
	}
	replay, err := eng.Replay(bars, t.Side)
	if err != nil {
		tr.Error = err.Error()
		return tr
	}

	tr.Recomputed = string(full.Side)
	tr.Passed = replay.Passed
	tr.FailedAt = replay.FailedAt
	tr.Gates, tr.DriftReasons = a.compareGates(replay, t.Trace)
	if full.Side != t.Side {
		tr.DriftReasons = append([]string{fmt.Sprintf("side %s -> %s", t.Side, sideOrNone(full.Side))}, tr.DriftReasons...)
	}
	tr.Drift = len(tr.DriftReasons) > 0

	if mae, mfe, err := a.excursion(ctx, t); err != nil {
		logger.Warn("[ANALYSIS] #%d excursion: %v", t.Ticket, err)
	} else {
		tr.MAER, tr.MFER = mae, mfe
	}
	return tr
}

// signalBars: need баров, последний из которых сигнальный бар сделки.
func (a *Analyzer) signalBars(ctx context.Context, t *models.Trade, need int) ([]models.Candle, error) {
	tf := t.Timeframe.Duration()
	if tf <= 0 || t.BarTime.IsZero() {
		return nil, fmt.Errorf("trade #%d: no signal bar", t.Ticket)
	}
	// с запасом на выходные и дыры в истории
	from := t.BarTime.Add(-time.Duration(need*3) * tf)
	bars, err := a.data.BarsRange(ctx, t.Symbol, t.Timeframe, from, t.BarTime)
	if err != nil {
		return nil, fmt.Errorf("bars %s %s: %w", t.Symbol, t.Timeframe, err)
	}
	for len(bars) > 0 && bars[len(bars)-1].Time.After(t.BarTime) {
		bars = bars[:len(bars)-1]
	}
	if len(bars) == 0 || !bars[len(bars)-1].Time.Equal(t.BarTime) {
		return nil, fmt.Errorf("trade #%d: signal bar %s not in history", t.Ticket, t.BarTime.Format(time.RFC3339))
	}
	if len(bars) > need {
		bars = bars[len(bars)-need:]
	}
	return bars, nil
}

// compareGates строит строки гейтов по replay и сверяет их с записанной трассой.
func (a *Analyzer) compareGates(replay strategy.Evaluation, recorded []models.GateResult) ([]GateReport, []string) {
	was := make(map[string]models.GateResult, len(recorded))
	for _, r := range recorded {
		was[r.Name] = r
	}

	var drift []string
	out := make([]GateReport, 0, len(replay.Trace))
	for _, r := range replay.Trace {
		g := GateReport{
			Name:      r.Name,
			Passed:    r.Passed,
			Value:     r.Value,
			Threshold: r.Threshold,
			Margin:    r.Margin,
			Narrow:    r.Passed && r.Margin >= 0 && r.Margin < a.narrow,
			Detail:    r.Detail,
		}
		if old, ok := was[r.Name]; ok {
			g.Recorded = &old.Margin
			if old.Passed != r.Passed {
				g.Changed = true
				drift = append(drift, fmt.Sprintf("%s %s -> %s", r.Name, passWord(old.Passed), passWord(r.Passed)))
			}
		}
		out = append(out, g)
	}
	return out, drift
}

// excursion: MAE/MFE в R по барам от входа до выхода.
func (a *Analyzer) excursion(ctx context.Context, t *models.Trade) (mae, mfe float64, err error) {
	if t.RiskDist <= 0 || t.ClosedAt.IsZero() {
		return 0, 0, fmt.Errorf("no risk or close time")
	}
	from := t.BarTime.Add(t.Timeframe.Duration())
	bars, err := a.data.BarsRange(ctx, t.Symbol, t.Timeframe, from, t.ClosedAt)
	if err != nil {
		return 0, 0, err
	}
	// бар, открывшийся в момент выхода, уже не наш
	for len(bars) > 0 && !bars[len(bars)-1].Time.Before(t.ClosedAt) {
		bars = bars[:len(bars)-1]
	}
	return Excursion(t.Side, t.Entry, t.RiskDist, bars)
}

// Excursion returns the worst adverse and best favourable move over bars, in R.
func Excursion(side models.Side, entry, riskDist float64, bars []models.Candle) (mae, mfe float64, err error) {
	if len(bars) == 0 {
		return 0, 0, fmt.Errorf("no bars between entry and exit")
	}
	if riskDist <= 0 {
		return 0, 0, fmt.Errorf("risk distance %.5f", riskDist)
	}
	hi, lo := bars[0].High, bars[0].Low
	for _, c := range bars[1:] {
		hi = max(hi, c.High)
		lo = min(lo, c.Low)
	}
	switch side {
	case models.SideBuy:
		return (entry - lo) / riskDist, (hi - entry) / riskDist, nil
	case models.SideSell:
		return (hi - entry) / riskDist, (entry - lo) / riskDist, nil
	}
	return 0, 0, fmt.Errorf("side %q", side)
}

func gateStats(trades []TradeReport) []GateStat {
	idx := map[string]int{}
	var out []GateStat
	for _, tr := range trades {
		for _, g := range tr.Gates {
			i, ok := idx[g.Name]
			if !ok {
				i = len(out)
				idx[g.Name] = i
				out = append(out, GateStat{Gate: g.Name})
			}
			s := &out[i]
			s.Seen++
			switch {
			case !g.Passed:
				s.Failed++
			case g.Narrow:
				s.Narrow++
			}
			if g.Changed {
				s.Changed++
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Narrow > out[j].Narrow })
	return out
}

func strategyStats(trades []TradeReport) []StrategyStat {
	idx := map[string]int{}
	var out []StrategyStat
	for _, tr := range trades {
		i, ok := idx[tr.Strategy]
		if !ok {
			i = len(out)
			idx[tr.Strategy] = i
			out = append(out, StrategyStat{Strategy: tr.Strategy})
		}
		s := &out[i]
		s.Losses++
		s.Profit += tr.Profit
		s.AvgR += tr.R
		if tr.Drift {
			s.Drift++
		}
	}
	for i := range out {
		out[i].AvgR /= float64(out[i].Losses)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}

func passWord(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}

func sideOrNone(s models.Side) string {
	if s == models.SideNone {
		return "NONE"
	}
	return string(s)
}
