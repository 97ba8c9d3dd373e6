package strategy

import (
	"fmt"
	"math"
	"strings"

	"fxbot/internal/models"
)

// DirectionGate is always the first entry of a trace.
const DirectionGate = "direction"

type Check func(s *Snapshot, side models.Side) models.GateResult

type Gate struct {
	Name  string
	Check Check
}

type DirectionFunc func(s *Snapshot) (models.Side, models.GateResult)

// Chain: упорядоченный список фильтров стратегии.
type Chain struct {
	Name      string
	Direction DirectionFunc
	Gates     []Gate
}

type Evaluation struct {
	Side     models.Side
	Passed   bool
	FailedAt string
	Trace    []models.GateResult
}

// Evaluate runs the direction gate and then every gate in order. In live mode
// (full=false) it stops at the first failure; in trace mode every gate runs.
func (c Chain) Evaluate(s *Snapshot, full bool) Evaluation {
	side, dir := c.Direction(s)
	dir.Name = DirectionGate
	dir.Passed = side != models.SideNone
	ev := Evaluation{Side: side, Trace: []models.GateResult{dir}}
	if side == models.SideNone {
		ev.FailedAt = DirectionGate
		return ev
	}
	return c.run(s, side, full, ev)
}

// EvaluateAs runs all gates for a fixed side. The direction gate is still
// recorded, passed only when it agrees with side.
func (c Chain) EvaluateAs(s *Snapshot, side models.Side) Evaluation {
	got, dir := c.Direction(s)
	dir.Name = DirectionGate
	dir.Passed = got == side
	if got != side {
		dir.Detail = strings.TrimSpace(fmt.Sprintf("%s (wants %s)", dir.Detail, sideOrNone(got)))
	}
	ev := Evaluation{Side: got, Trace: []models.GateResult{dir}}
	if !dir.Passed {
		ev.FailedAt = DirectionGate
	}
	return c.run(s, side, true, ev)
}

func (c Chain) run(s *Snapshot, side models.Side, full bool, ev Evaluation) Evaluation {
	for _, g := range c.Gates {
		r := g.Check(s, side)
		r.Name = g.Name
		ev.Trace = append(ev.Trace, r)
		if r.Passed {
			continue
		}
		if ev.FailedAt == "" {
			ev.FailedAt = g.Name
		}
		if !full {
			break
		}
	}
	ev.Passed = ev.FailedAt == ""
	return ev
}

// Gate returns the trace entry by name.
func (e Evaluation) Gate(name string) (models.GateResult, bool) {
	for _, r := range e.Trace {
		if r.Name == name {
			return r, true
		}
	}
	return models.GateResult{}, false
}

func (e Evaluation) String() string {
	var b strings.Builder
	b.WriteString(sideOrNone(e.Side))
	for _, r := range e.Trace {
		mark := "ok"
		if !r.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, " %s=%s(%.4g/%.4g)", r.Name, mark, r.Value, r.Threshold)
	}
	return b.String()
}

func sideOrNone(s models.Side) string {
	if s == models.SideNone {
		return "NONE"
	}
	return string(s)
}

// norm делит на |thr|, при нулевом пороге возвращает разницу как есть.
func norm(diff, thr float64) float64 {
	if thr == 0 {
		return diff
	}
	return diff / math.Abs(thr)
}

// minGate passes when v >= thr.
func minGate(v, thr float64) models.GateResult {
	return models.GateResult{Passed: v >= thr, Value: v, Threshold: thr, Margin: norm(v-thr, thr)}
}

// maxGate passes when v <= thr.
func maxGate(v, thr float64) models.GateResult {
	return models.GateResult{Passed: v <= thr, Value: v, Threshold: thr, Margin: norm(thr-v, thr)}
}

// beyond passes when v is strictly past level in the trade direction.
// Margin is measured in ATRs.
func beyond(side models.Side, v, level, atr float64) models.GateResult {
	d := (v - level) * side.Sign()
	m := d
	if atr > 0 {
		m = d / atr
	}
	return models.GateResult{Passed: d > 0, Value: v, Threshold: level, Margin: m}
}

// within passes when lo <= v <= hi; margin is the distance to the nearer
// bound over the half-width.
func within(v, lo, hi float64) models.GateResult {
	half := (hi - lo) / 2
	d := math.Min(v-lo, hi-v)
	m := d
	if half > 0 {
		m = d / half
	}
	return models.GateResult{Passed: v >= lo && v <= hi, Value: v, Threshold: lo, Margin: m,
		Detail: fmt.Sprintf("[%.4g, %.4g]", lo, hi)}
}

func flag(ok bool, detail string) models.GateResult {
	r := models.GateResult{Passed: ok, Threshold: 1, Margin: -1, Detail: detail}
	if ok {
		r.Value = 1
		r.Margin = 1
	}
	return r
}

func notReady(detail string) models.GateResult {
	return models.GateResult{Margin: -1, Detail: detail}
}
