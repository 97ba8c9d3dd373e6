// Package journal keeps the trade log with the gate trace of every entry.
package journal

import (
	"context"
	"errors"
	"time"

	"fxbot/internal/models"
)

var ErrNotFound = errors.New("trade not found")

type Store interface {
	Open(ctx context.Context, t *models.Trade) (int64, error)
	Close(ctx context.Context, ticket int64, exitPrice, profit float64, reason string, closedAt time.Time) error
	ByTicket(ctx context.Context, ticket int64) (*models.Trade, error)
	OpenTrades(ctx context.Context, bot string) ([]*models.Trade, error)
	// Losses: закрытые убыточные сделки, новые первыми.
	Losses(ctx context.Context, f Filter) ([]*models.Trade, error)
	RecordSignal(ctx context.Context, sig models.Signal, accepted bool) error
}

// Filter: пустые поля не фильтруют.
type Filter struct {
	Bot      string
	Symbol   string
	Strategy string
	Since    time.Time
	Limit    int
}

func (f Filter) match(t *models.Trade) bool {
	if f.Bot != "" && t.Bot != f.Bot {
		return false
	}
	if f.Symbol != "" && t.Symbol != f.Symbol {
		return false
	}
	if f.Strategy != "" && t.Strategy != f.Strategy {
		return false
	}
	if !f.Since.IsZero() && t.ClosedAt.Before(f.Since) {
		return false
	}
	return true
}

// SignalRecord: строка журнала сигналов (в том числе отклонённых).
type SignalRecord struct {
	Signal   models.Signal
	Accepted bool
}
