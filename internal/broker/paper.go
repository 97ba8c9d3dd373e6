package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fxbot/internal/models"
)

// Paper: брокер в памяти, исполняет по последнему close, закрывает позиции,
// когда новый бар касается SL/TP (SL проверяется первым), пишет сделки.
// С feed котировки берутся у него, без feed: из AddBars.
type Paper struct {
	feed MarketData
	now  func() time.Time

	mu       sync.Mutex
	balance  float64
	bars     map[string][]models.Candle
	seen     map[string]time.Time
	last     map[string]fill
	symbols  map[string]models.SymbolInfo
	pos      map[int64]*models.Position
	deals    []models.Deal
	nextTick int64
}

type fill struct {
	price float64
	at    time.Time
}

func NewPaper(balance float64, feed MarketData) *Paper {
	return &Paper{
		feed:     feed,
		now:      time.Now,
		balance:  balance,
		bars:     make(map[string][]models.Candle),
		seen:     make(map[string]time.Time),
		last:     make(map[string]fill),
		symbols:  make(map[string]models.SymbolInfo),
		pos:      make(map[int64]*models.Position),
		nextTick: 1000,
	}
}

func barsKey(symbol string, tf models.Timeframe) string { return symbol + "|" + string(tf) }

func (p *Paper) SetSymbol(info models.SymbolInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.symbols[info.Name] = info
}

// AddBars appends closed bars and runs SL/TP checks against them.
func (p *Paper) AddBars(symbol string, tf models.Timeframe, bars ...models.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := barsKey(symbol, tf)
	p.bars[k] = append(p.bars[k], bars...)
	p.observe(symbol, tf, bars)
}

func (p *Paper) Bars(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.Candle, error) {
	if p.feed != nil {
		bars, err := p.feed.Bars(ctx, symbol, tf, count)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.observe(symbol, tf, bars)
		p.mu.Unlock()
		return bars, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	all := p.bars[barsKey(symbol, tf)]
	if len(all) == 0 {
		return nil, fmt.Errorf("paper bars %s %s: %w", symbol, tf, ErrNotFound)
	}
	if count > 0 && count < len(all) {
		all = all[len(all)-count:]
	}
	return append([]models.Candle(nil), all...), nil
}

func (p *Paper) BarsRange(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]models.Candle, error) {
	if p.feed != nil {
		return p.feed.BarsRange(ctx, symbol, tf, from, to)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Candle
	for _, c := range p.bars[barsKey(symbol, tf)] {
		if !c.Time.Before(from) && !c.Time.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (p *Paper) Symbol(ctx context.Context, name string) (models.SymbolInfo, error) {
	p.mu.Lock()
	info, ok := p.symbols[name]
	p.mu.Unlock()
	if ok {
		return info, nil
	}
	if p.feed == nil {
		return models.SymbolInfo{}, fmt.Errorf("paper symbol %s: %w", name, ErrNotFound)
	}
	info, err := p.feed.Symbol(ctx, name)
	if err != nil {
		return models.SymbolInfo{}, err
	}
	// без tick size/value прибыль считалась бы в пунктах цены
	p.mu.Lock()
	p.symbols[name] = info
	p.mu.Unlock()
	return info, nil
}

func (p *Paper) Account(_ context.Context) (models.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	eq := p.balance
	for _, pos := range p.pos {
		eq += pos.Profit
	}
	return models.Account{Login: 1, Balance: p.balance, Equity: eq, Currency: "USD", Leverage: 100}, nil
}

func (p *Paper) Positions(_ context.Context, magic int64) ([]models.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Position, 0, len(p.pos))
	for _, pos := range p.pos {
		if magic == 0 || pos.Magic == magic {
			out = append(out, *pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

func (p *Paper) PlaceMarket(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if req.Volume <= 0 {
		return OrderResult{}, fmt.Errorf("paper place: volume %.4f", req.Volume)
	}
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		return OrderResult{}, fmt.Errorf("paper place: side %q", req.Side)
	}
	if p.feed != nil {
		if _, err := p.Symbol(ctx, req.Symbol); err != nil {
			return OrderResult{}, fmt.Errorf("paper place %s: %w", req.Symbol, err)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.last[req.Symbol]
	if !ok {
		return OrderResult{}, fmt.Errorf("paper place %s: no price yet", req.Symbol)
	}
	p.nextTick++
	ticket := p.nextTick
	p.pos[ticket] = &models.Position{
		Ticket:   ticket,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Volume:   req.Volume,
		Entry:    f.price,
		SL:       req.SL,
		TP:       req.TP,
		Price:    f.price,
		Magic:    req.Magic,
		Comment:  req.Comment,
		OpenedAt: f.at,
	}
	p.deal(ticket, models.DealIn, f.price, req.Volume, 0, f.at, req.Comment)
	return OrderResult{Ticket: ticket, Price: f.price, Volume: req.Volume, Time: f.at}, nil
}

func (p *Paper) ModifySLTP(_ context.Context, ticket int64, sl, tp float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.pos[ticket]
	if !ok {
		return fmt.Errorf("paper modify #%d: %w", ticket, ErrNotFound)
	}
	pos.SL, pos.TP = sl, tp
	return nil
}

func (p *Paper) ClosePosition(_ context.Context, ticket int64, volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.pos[ticket]
	if !ok {
		return fmt.Errorf("paper close #%d: %w", ticket, ErrNotFound)
	}
	f := p.last[pos.Symbol]
	p.closeAt(pos, f.price, volume, f.at, "manual")
	return nil
}

func (p *Paper) Deals(_ context.Context, positionTicket int64) ([]models.Deal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Deal
	for _, d := range p.deals {
		if d.PositionTicket == positionTicket {
			out = append(out, d)
		}
	}
	return out, nil
}

// observe двигает последнюю цену и проверяет SL/TP на новых барах.
func (p *Paper) observe(symbol string, tf models.Timeframe, bars []models.Candle) {
	k := barsKey(symbol, tf)
	for _, c := range bars {
		if !c.Time.After(p.seen[k]) && !p.seen[k].IsZero() {
			continue
		}
		closeAt := c.CloseTime(tf)
		if closeAt.After(p.now()) {
			// бар ещё формируется
			break
		}
		p.seen[k] = c.Time
		for _, pos := range p.sortedPositions(symbol) {
			if c.Time.Before(pos.OpenedAt) {
				continue
			}
			p.touch(pos, c, closeAt)
		}
		p.last[symbol] = fill{price: c.Close, at: closeAt}
	}
	for _, pos := range p.pos {
		if pos.Symbol == symbol {
			pos.Price = p.last[symbol].price
			pos.Profit = p.pnl(pos, pos.Price, pos.Volume)
		}
	}
}

func (p *Paper) touch(pos *models.Position, c models.Candle, at time.Time) {
	switch pos.Side {
	case models.SideBuy:
		if pos.SL > 0 && c.Low <= pos.SL {
			p.closeAt(pos, pos.SL, pos.Volume, at, "sl")
			return
		}
		if pos.TP > 0 && c.High >= pos.TP {
			p.closeAt(pos, pos.TP, pos.Volume, at, "tp")
		}
	case models.SideSell:
		if pos.SL > 0 && c.High >= pos.SL {
			p.closeAt(pos, pos.SL, pos.Volume, at, "sl")
			return
		}
		if pos.TP > 0 && c.Low <= pos.TP {
			p.closeAt(pos, pos.TP, pos.Volume, at, "tp")
		}
	}
}

func (p *Paper) closeAt(pos *models.Position, price, volume float64, at time.Time, reason string) {
	if volume <= 0 || volume > pos.Volume {
		volume = pos.Volume
	}
	profit := p.pnl(pos, price, volume)
	p.balance += profit
	p.deal(pos.Ticket, models.DealOut, price, volume, profit, at, reason)
	pos.Volume -= volume
	if pos.Volume <= 1e-9 {
		delete(p.pos, pos.Ticket)
	}
}

func (p *Paper) pnl(pos *models.Position, price, volume float64) float64 {
	move := (price - pos.Entry) * pos.Side.Sign()
	info, ok := p.symbols[pos.Symbol]
	if !ok || info.TickSize <= 0 || info.TickValue <= 0 {
		return move * volume
	}
	return move / info.TickSize * info.TickValue * volume
}

func (p *Paper) deal(ticket int64, entry models.DealEntry, price, volume, profit float64, at time.Time, comment string) {
	p.nextTick++
	p.deals = append(p.deals, models.Deal{
		Ticket:         p.nextTick,
		PositionTicket: ticket,
		Entry:          entry,
		Price:          price,
		Volume:         volume,
		Profit:         profit,
		Time:           at,
		Comment:        comment,
	})
}

func (p *Paper) sortedPositions(symbol string) []*models.Position {
	var out []*models.Position
	for _, pos := range p.pos {
		if pos.Symbol == symbol {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out
}
