// Package events publishes trade lifecycle events for downstream consumers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TradeOpened    = "trade.opened"
	TradeClosed    = "trade.closed"
	TradeModified  = "trade.modified"
	SignalRejected = "signal.rejected"
)

type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Bot     string    `json:"bot"`
	Symbol  string    `json:"symbol"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(typ, bot, symbol string, payload any) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    typ,
		Bot:     bot,
		Symbol:  symbol,
		Time:    time.Now().UTC(),
		Payload: payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop: когда amqp_uri не задан.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
