package service

import (
	"time"

	"fxbot/internal/runner"
)

// BotSource: то, что знает о ботах (runner.Manager).
type BotSource interface {
	Ready() bool
	Status() []runner.BotStatus
}

type State struct {
	startedAt time.Time
	bots      BotSource
	now       func() time.Time
}

func NewState(bots BotSource) *State {
	return &State{startedAt: time.Now(), bots: bots, now: time.Now}
}

func (s *State) Ready() bool { return s.bots != nil && s.bots.Ready() }

func (s *State) Uptime() time.Duration { return s.now().Sub(s.startedAt) }

// LastBar: самый свежий обработанный бар среди всех ботов.
func (s *State) LastBar() time.Time {
	var last time.Time
	for _, b := range s.bots.Status() {
		if b.LastBar.After(last) {
			last = b.LastBar
		}
	}
	return last
}

type Health struct {
	Ready       bool               `json:"ready"`
	UptimeSec   int64              `json:"uptimeSec"`
	LastBarUnix int64              `json:"lastBarUnix"`
	Bots        []runner.BotStatus `json:"bots"`
}

func (s *State) Snapshot() Health {
	h := Health{
		Ready:     s.Ready(),
		UptimeSec: int64(s.Uptime().Seconds()),
		Bots:      s.bots.Status(),
	}
	if t := s.LastBar(); !t.IsZero() {
		h.LastBarUnix = t.Unix()
	}
	return h
}
