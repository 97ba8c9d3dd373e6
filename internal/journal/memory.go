package journal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fxbot/internal/models"
)

type Memory struct {
	mu      sync.RWMutex
	nextID  int64
	trades  map[int64]*models.Trade // по тикету
	signals []SignalRecord
}

func NewMemory() *Memory {
	return &Memory{trades: make(map[int64]*models.Trade)}
}

func (m *Memory) Open(_ context.Context, t *models.Trade) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trades[t.Ticket]; ok {
		return 0, fmt.Errorf("journal open: ticket %d already journaled", t.Ticket)
	}
	m.nextID++
	cp := *t
	cp.ID = m.nextID
	if cp.Status == "" {
		cp.Status = models.TradeOpen
	}
	m.trades[t.Ticket] = &cp
	t.ID = cp.ID
	return cp.ID, nil
}

func (m *Memory) Close(_ context.Context, ticket int64, exitPrice, profit float64, reason string, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[ticket]
	if !ok {
		return fmt.Errorf("journal close #%d: %w", ticket, ErrNotFound)
	}
	t.Status = models.TradeClosed
	t.ExitPrice = exitPrice
	t.Profit = profit
	t.ExitReason = reason
	t.ClosedAt = closedAt
	return nil
}

func (m *Memory) ByTicket(_ context.Context, ticket int64) (*models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trades[ticket]
	if !ok {
		return nil, fmt.Errorf("journal #%d: %w", ticket, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) OpenTrades(_ context.Context, bot string) ([]*models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Trade
	for _, t := range m.trades {
		if t.Status == models.TradeOpen && (bot == "" || t.Bot == bot) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Losses(_ context.Context, f Filter) ([]*models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Trade
	for _, t := range m.trades {
		if t.IsLoss() && f.match(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.After(out[j].ClosedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) RecordSignal(_ context.Context, sig models.Signal, accepted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, SignalRecord{Signal: sig, Accepted: accepted})
	return nil
}

func (m *Memory) Signals() []SignalRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SignalRecord(nil), m.signals...)
}
