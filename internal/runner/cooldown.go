package runner

import (
	"sync"
	"time"
)

// Cooldowns: пауза входов по символу после убытка или отказа, общая для
// всех ботов на этом символе.
type Cooldowns struct {
	mu    sync.Mutex
	until map[string]time.Time
}

func NewCooldowns() *Cooldowns {
	return &Cooldowns{until: make(map[string]time.Time)}
}

// Set продлевает паузу; более ранний срок не укорачивает текущий.
func (c *Cooldowns) Set(symbol string, until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.until[symbol]; ok && cur.After(until) {
		return
	}
	c.until[symbol] = until
}

func (c *Cooldowns) Active(symbol string, now time.Time) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.until[symbol]
	if !ok {
		return time.Time{}, false
	}
	if !now.Before(until) {
		delete(c.until, symbol)
		return time.Time{}, false
	}
	return until, true
}
