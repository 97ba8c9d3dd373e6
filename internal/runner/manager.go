package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fxbot/internal/broker"
	"fxbot/internal/config"
	"fxbot/pkg/logger"
)

var ErrUnknownBot = errors.New("unknown bot")

// BotStatus: снимок бота для /status и /healthz.
type BotStatus struct {
	Name      string    `json:"name"`
	Strategy  string    `json:"strategy"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Magic     int64     `json:"magic"`
	Paused    bool      `json:"paused"`
	LastBar   time.Time `json:"last_bar"`
	LastTick  time.Time `json:"last_tick"`
	LastError string    `json:"last_error,omitempty"`
	Signals   int       `json:"signals"`
	Managed   int       `json:"managed"`
}

func (b *Bot) Status() BotStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := BotStatus{
		Name:      b.cfg.Name,
		Strategy:  b.cfg.Strategy,
		Symbol:    b.cfg.Symbol,
		Timeframe: string(b.tf),
		Magic:     b.cfg.Magic,
		Paused:    b.paused,
		LastBar:   b.lastBar,
		LastTick:  b.lastTick,
		Signals:   b.signals,
		Managed:   len(b.trail),
	}
	if b.lastErr != nil {
		st.LastError = b.lastErr.Error()
	}
	return st
}

// Manager управляет ботами из конфига.
type Manager struct {
	mu     sync.Mutex
	bots   map[string]*Bot
	order  []string
	stream *broker.Stream

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager собирает ботов; stream может быть nil, тогда только поллинг.
func NewManager(cfg *config.Config, deps Deps, stream *broker.Stream) (*Manager, error) {
	if deps.Cooldowns == nil {
		deps.Cooldowns = NewCooldowns()
	}
	if deps.ConfirmTimeout <= 0 {
		deps.ConfirmTimeout = cfg.Telegram.ConfirmTimeout
	}
	m := &Manager{
		bots:   make(map[string]*Bot, len(cfg.Bots)),
		stream: stream,
	}
	for _, bc := range cfg.Bots {
		b, err := NewBot(bc, deps)
		if err != nil {
			return nil, err
		}
		m.bots[bc.Name] = b
		m.order = append(m.order, bc.Name)
	}
	return m, nil
}

// Start запускает цикл каждого бота и, если есть стрим, раздачу закрытых баров.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)

	for _, name := range m.order {
		b := m.bots[name]
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			b.Run(ctx)
		}()
	}

	if m.stream != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.route(ctx, m.stream.Subscribe(ctx, m.streamKeys()))
		}()
	}
	logger.Info("[RUNNER] %d bots started", len(m.order))
}

func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
	logger.Info("[RUNNER] stopped")
}

func (m *Manager) streamKeys() []broker.StreamKey {
	seen := map[broker.StreamKey]bool{}
	var keys []broker.StreamKey
	for _, name := range m.order {
		b := m.bots[name]
		k := broker.StreamKey{Symbol: b.cfg.Symbol, Timeframe: b.tf}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// route будит ботов, чей символ и таймфрейм совпали с закрытым баром.
func (m *Manager) route(ctx context.Context, ch <-chan broker.BarEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			for _, name := range m.order {
				b := m.bots[name]
				if b.cfg.Symbol == ev.Symbol && b.tf == ev.Timeframe {
					b.Wake()
				}
			}
		}
	}
}

func (m *Manager) Pause(name string) error  { return m.setPaused(name, true) }
func (m *Manager) Resume(name string) error { return m.setPaused(name, false) }

func (m *Manager) setPaused(name string, v bool) error {
	b, ok := m.bots[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBot, name)
	}
	b.SetPaused(v)
	logger.Info("[RUNNER] %s paused=%v", name, v)
	return nil
}

func (m *Manager) Bot(name string) (*Bot, bool) {
	b, ok := m.bots[name]
	return b, ok
}

func (m *Manager) Status() []BotStatus {
	out := make([]BotStatus, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.bots[name].Status())
	}
	return out
}

// Ready: каждый бот хотя бы раз отработал тик без ошибки.
func (m *Manager) Ready() bool {
	for _, st := range m.Status() {
		if st.LastTick.IsZero() || st.LastError != "" {
			return false
		}
	}
	return len(m.order) > 0
}

// StatusText: ответ на /status.
func (m *Manager) StatusText() string {
	st := m.Status()
	sort.Slice(st, func(i, j int) bool { return st[i].Name < st[j].Name })

	var sb strings.Builder
	sb.WriteString("📊 Боты:\n")
	for _, s := range st {
		state := "▶️"
		if s.Paused {
			state = "⏸"
		}
		last := "—"
		if !s.LastBar.IsZero() {
			last = s.LastBar.UTC().Format("01-02 15:04")
		}
		fmt.Fprintf(&sb, "%s %s %s %s %s | бар %s | сигналов %d | позиций %d",
			state, s.Name, s.Strategy, s.Symbol, s.Timeframe, last, s.Signals, s.Managed)
		if s.LastError != "" {
			fmt.Fprintf(&sb, " | ❗️ %s", s.LastError)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
