// Package strategy evaluates ordered gate chains over closed bars.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fxbot/internal/models"
)

var (
	ErrUnknown       = errors.New("unknown strategy")
	ErrNotEnoughBars = errors.New("not enough bars")
)

// Engine: то, что дергает раннер и анализ убытков.
type Engine interface {
	Name() string
	Params() Params
	// Warmup: сколько закрытых баров нужно для оценки.
	Warmup() int
	Evaluate(symbol string, tf models.Timeframe, candles []models.Candle, full bool) (models.Signal, Evaluation, error)
	// Replay runs every gate for a known side (loss analysis).
	Replay(candles []models.Candle, side models.Side) (Evaluation, error)
}

type definition struct {
	defaults Params
	chain    func() Chain
	warmup   func(Params) int
}

var registry = map[string]definition{
	"ema_pullback":      {defaults: emaPullbackDefaults, chain: emaPullbackChain, warmup: emaPullbackWarmup},
	"donchian_breakout": {defaults: donchianDefaults, chain: donchianChain, warmup: donchianWarmup},
	"heiken_trend":      {defaults: heikenDefaults, chain: heikenChain, warmup: heikenWarmup},
	"trendline_break":   {defaults: trendlineDefaults, chain: trendlineChain, warmup: trendlineWarmup},
}

// Names lists the built-in strategies.
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// NewEngine builds a strategy by name; params override the defaults.
func NewEngine(name string, params map[string]float64) (Engine, error) {
	def, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	p := Params(params).With(def.defaults.With(baseDefaults))
	return &chainEngine{
		name:   name,
		params: p,
		chain:  def.chain(),
		warmup: def.warmup(p),
	}, nil
}

// Window: сколько последних закрытых баров видит одна оценка, вживую и при
// разборе убытков.
func Window(e Engine) int { return e.Warmup() + 1 }

// LastWindow оставляет последние Window(e) баров.
func LastWindow(e Engine, candles []models.Candle) []models.Candle {
	if n := Window(e); len(candles) > n {
		return candles[len(candles)-n:]
	}
	return candles
}

type chainEngine struct {
	name   string
	params Params
	chain  Chain
	warmup int
}

func (e *chainEngine) Name() string   { return e.name }
func (e *chainEngine) Params() Params { return e.params }
func (e *chainEngine) Warmup() int    { return e.warmup }

// Evaluate expects only closed bars; the last one is the signal bar.
func (e *chainEngine) Evaluate(symbol string, tf models.Timeframe, candles []models.Candle, full bool) (models.Signal, Evaluation, error) {
	if len(candles) < e.warmup {
		return models.Signal{}, Evaluation{}, fmt.Errorf("%s %s: %w (%d < %d)", e.name, symbol, ErrNotEnoughBars, len(candles), e.warmup)
	}
	snap := NewSnapshot(candles, e.params)
	ev := e.chain.Evaluate(snap, full)
	if !ev.Passed {
		return models.Signal{}, ev, nil
	}
	bar := snap.Bar()
	return models.Signal{
		Strategy:  e.name,
		Symbol:    symbol,
		Timeframe: tf,
		Side:      ev.Side,
		Price:     bar.Close,
		ATR:       snap.LastATR(),
		BarTime:   bar.Time,
		Reason:    reason(e.name, ev),
		Trace:     ev.Trace,
		CreatedAt: time.Now().UTC(),
	}, ev, nil
}

func (e *chainEngine) Replay(candles []models.Candle, side models.Side) (Evaluation, error) {
	if len(candles) < e.warmup {
		return Evaluation{}, fmt.Errorf("%s replay: %w (%d < %d)", e.name, ErrNotEnoughBars, len(candles), e.warmup)
	}
	if side == models.SideNone {
		return Evaluation{}, fmt.Errorf("%s replay: empty side", e.name)
	}
	return e.chain.EvaluateAs(NewSnapshot(candles, e.params), side), nil
}

func reason(name string, ev Evaluation) string {
	parts := make([]string, 0, len(ev.Trace))
	for _, r := range ev.Trace {
		parts = append(parts, fmt.Sprintf("%s=%.4g", r.Name, r.Value))
	}
	return fmt.Sprintf("%s %s: %s", name, ev.Side, strings.Join(parts, " "))
}
