package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"fxbot/internal/broker"
	"fxbot/internal/config"
	"fxbot/internal/events"
	"fxbot/internal/helper"
	"fxbot/internal/indicators"
	"fxbot/internal/journal"
	"fxbot/internal/models"
	"fxbot/internal/notify"
	"fxbot/internal/strategy"
	"fxbot/pkg/logger"
	"fxbot/pkg/tracing"

	"github.com/opentracing/opentracing-go"
)

// Deps: общие зависимости всех ботов.
type Deps struct {
	Broker         broker.Broker
	Journal        journal.Store
	Notifier       notify.Notifier
	Events         events.Publisher
	Cooldowns      *Cooldowns
	ConfirmTimeout time.Duration
}

// Bot: одна связка стратегия/символ/таймфрейм/magic со своим циклом.
type Bot struct {
	cfg         config.BotConfig
	tf          models.Timeframe
	engine      strategy.Engine
	manageRules models.ManageConfig

	broker         broker.Broker
	journal        journal.Store
	notifier       notify.Notifier
	events         events.Publisher
	cooldowns      *Cooldowns
	confirmTimeout time.Duration

	now  func() time.Time
	wake chan struct{}

	mu       sync.Mutex
	paused   bool
	info     models.SymbolInfo
	lastBar  time.Time
	lastTick time.Time
	lastErr  error
	signals  int
	trail    map[string]*models.PositionTrailState
}

func NewBot(cfg config.BotConfig, deps Deps) (*Bot, error) {
	engine, err := strategy.NewEngine(cfg.Strategy, cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("bot %s: %w", cfg.Name, err)
	}
	if deps.Cooldowns == nil {
		deps.Cooldowns = NewCooldowns()
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewStdout()
	}
	if deps.ConfirmTimeout <= 0 {
		deps.ConfirmTimeout = time.Minute
	}
	return &Bot{
		cfg:            cfg,
		tf:             cfg.TF(),
		engine:         engine,
		manageRules:    cfg.Risk.ManageRules(),
		broker:         deps.Broker,
		journal:        deps.Journal,
		notifier:       deps.Notifier,
		events:         deps.Events,
		cooldowns:      deps.Cooldowns,
		confirmTimeout: deps.ConfirmTimeout,
		now:            time.Now,
		wake:           make(chan struct{}, 1),
		trail:          make(map[string]*models.PositionTrailState),
	}, nil
}

func (b *Bot) Name() string { return b.cfg.Name }

// Run: poll, sleep, repeat. Ошибки тика логируются, цикл продолжается.
func (b *Bot) Run(ctx context.Context) {
	logger.Info("[%s] started: %s %s %s magic=%d poll=%s",
		b.cfg.Name, b.cfg.Strategy, b.cfg.Symbol, b.tf, b.cfg.Magic, b.cfg.Poll)

	t := time.NewTicker(b.cfg.Poll)
	defer t.Stop()
	for {
		if err := b.Tick(ctx); err != nil && ctx.Err() == nil {
			logger.Error("[%s] tick: %v", b.cfg.Name, err)
		}
		select {
		case <-ctx.Done():
			logger.Info("[%s] stopped", b.cfg.Name)
			return
		case <-t.C:
		case <-b.wake:
		}
	}
}

// Wake будит цикл раньше таймера (закрытый бар пришёл из стрима).
func (b *Bot) Wake() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bot) SetPaused(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = v
}

// Tick: одна итерация. Бары, сопровождение, синк закрытых, гейты, вход.
func (b *Bot) Tick(ctx context.Context) (err error) {
	span, ctx := tracing.Start(ctx, "bot.tick",
		opentracing.Tag{Key: "bot", Value: b.cfg.Name},
		opentracing.Tag{Key: "symbol", Value: b.cfg.Symbol},
	)
	defer func() {
		tracing.Fail(span, err)
		span.Finish()
		b.mu.Lock()
		b.lastTick = b.now()
		b.lastErr = err
		b.mu.Unlock()
	}()

	now := b.now()
	// +1 на бар, который ещё формируется
	bars, err := b.broker.Bars(ctx, b.cfg.Symbol, b.tf, strategy.Window(b.engine)+1)
	if err != nil {
		return fmt.Errorf("bars %s %s: %w", b.cfg.Symbol, b.tf, err)
	}
	bars = strategy.LastWindow(b.engine, closedBars(bars, b.tf, now))
	if len(bars) == 0 {
		return nil
	}
	last := bars[len(bars)-1]

	b.mu.Lock()
	seen := !last.Time.After(b.lastBar)
	b.mu.Unlock()
	if seen {
		return nil
	}

	if err := b.refreshSymbol(ctx); err != nil {
		return err
	}
	positions, err := b.broker.Positions(ctx, b.cfg.Magic)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}
	// бар считается обработанным, только когда бридж ответил
	b.mu.Lock()
	b.lastBar = last.Time
	b.mu.Unlock()

	if len(positions) > 0 {
		atr := lastATR(bars, b.engine.Params().Int("atr_period"))
		for _, p := range positions {
			b.manage(ctx, p, last, atr)
		}
		// сопровождение могло закрыть позицию
		if positions, err = b.broker.Positions(ctx, b.cfg.Magic); err != nil {
			return fmt.Errorf("positions: %w", err)
		}
	}
	if err := b.syncClosed(ctx, positions); err != nil {
		logger.Error("[%s] sync closed: %v", b.cfg.Name, err)
	}

	// --- гейты вне стратегии ---
	b.mu.Lock()
	paused := b.paused
	b.mu.Unlock()
	if paused {
		return nil
	}
	if len(positions) >= b.cfg.Risk.MaxPositions {
		logger.Debug("[%s] max positions %d reached", b.cfg.Name, b.cfg.Risk.MaxPositions)
		return nil
	}
	if until, ok := b.cooldowns.Active(b.cfg.Symbol, now); ok {
		logger.Debug("[%s] %s cooldown until %s", b.cfg.Name, b.cfg.Symbol, until.Format(time.RFC3339))
		return nil
	}

	sig, ev, err := b.engine.Evaluate(b.cfg.Symbol, b.tf, bars, false)
	if err != nil {
		if errors.Is(err, strategy.ErrNotEnoughBars) {
			logger.Warn("[%s] %v", b.cfg.Name, err)
			return nil
		}
		return err
	}
	if sig.IsEmpty() {
		logger.Debug("[%s] %s no signal: %s", b.cfg.Name, last.Time.Format(time.RFC3339), ev.String())
		return nil
	}
	sig.Bot = b.cfg.Name

	b.mu.Lock()
	b.signals++
	b.mu.Unlock()
	logger.Info("[%s] signal %s", b.cfg.Name, sig.Reason)

	return b.enter(ctx, sig, bars)
}

// enter: параметры, подтверждение, заявка, журнал, уведомление, событие.
func (b *Bot) enter(ctx context.Context, sig models.Signal, bars []models.Candle) error {
	acc, err := b.broker.Account(ctx)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	low, high := lastSwings(bars, b.engine.Params())
	params, err := calcTradeParams(entryInput{
		Side:      sig.Side,
		Entry:     sig.Price,
		ATR:       sig.ATR,
		Balance:   acc.Balance,
		Symbol:    b.info,
		Risk:      b.cfg.Risk,
		SwingLow:  low,
		SwingHigh: high,
	})
	if err != nil {
		b.recordSignal(ctx, sig, false)
		b.notifier.Sendf("❗️ [%s] %s %s: параметры сделки: %v", b.cfg.Name, sig.Symbol, sig.Side, err)
		return fmt.Errorf("trade params: %w", err)
	}

	if b.cfg.Risk.ConfirmRequired() {
		if !b.notifier.Confirm(ctx, confirmPrompt(b.cfg.Name, sig, params), b.confirmTimeout) {
			until := b.now().Add(b.cfg.Risk.Cooldown)
			b.cooldowns.Set(sig.Symbol, until)
			b.recordSignal(ctx, sig, false)
			b.publish(ctx, events.SignalRejected, map[string]any{
				"side":     sig.Side,
				"price":    sig.Price,
				"bar_time": sig.BarTime,
				"reason":   sig.Reason,
			})
			logger.Info("[%s] entry rejected, cooldown until %s", b.cfg.Name, until.Format(time.RFC3339))
			return nil
		}
	}

	if b.cfg.Risk.IsDryRun() {
		b.recordSignal(ctx, sig, true)
		logger.Info("[%s] DRY RUN %s %s vol=%.2f entry=%.5f sl=%.5f tp=%.5f",
			b.cfg.Name, sig.Side, sig.Symbol, params.Volume, params.Entry, params.SL, params.TP)
		b.notifier.Sendf("🧪 [%s] DRY RUN %s %s vol=%.2f entry=%.5f SL=%.5f TP=%.5f",
			b.cfg.Name, sig.Side, sig.Symbol, params.Volume, params.Entry, params.SL, params.TP)
		return nil
	}

	res, err := b.place(ctx, sig, params)
	if err != nil {
		b.recordSignal(ctx, sig, false)
		b.notifier.Sendf("❗️ [%s] %s %s: заявка не прошла: %v", b.cfg.Name, sig.Symbol, sig.Side, err)
		return err
	}
	b.recordSignal(ctx, sig, true)

	entry := res.Price
	if entry <= 0 {
		entry = params.Entry
	}
	vol := res.Volume
	if vol <= 0 {
		vol = params.Volume
	}
	trade := &models.Trade{
		Ticket:    res.Ticket,
		Bot:       b.cfg.Name,
		Strategy:  sig.Strategy,
		Symbol:    sig.Symbol,
		Timeframe: sig.Timeframe,
		Side:      sig.Side,
		Volume:    vol,
		Entry:     entry,
		SL:        params.SL,
		TP:        params.TP,
		RiskDist:  math.Abs(entry - params.SL),
		OpenedAt:  res.Time,
		BarTime:   sig.BarTime,
		Status:    models.TradeOpen,
		Trace:     sig.Trace,
	}
	if trade.OpenedAt.IsZero() {
		trade.OpenedAt = b.now()
	}
	if _, err := b.journal.Open(ctx, trade); err != nil {
		// позиция уже в рынке, сопровождение всё равно включаем
		logger.Error("[%s] journal open #%d: %v", b.cfg.Name, res.Ticket, err)
	}

	b.mu.Lock()
	b.trail[helper.TrailKey(sig.Symbol, res.Ticket)] = &models.PositionTrailState{
		Ticket:   res.Ticket,
		Symbol:   sig.Symbol,
		Side:     sig.Side,
		Entry:    entry,
		SL:       params.SL,
		TP:       params.TP,
		RiskDist: trade.RiskDist,
		Volume:   vol,
		TickSz:   params.TickSize,
		MFE:      entry,
		OpenedAt: trade.OpenedAt,
		LastBar:  sig.BarTime,
	}
	b.mu.Unlock()

	b.notifier.Sendf("✅ [%s] %s %s #%d\nvol=%.2f entry=%.5f\nSL=%.5f TP=%.5f (RR %.1f)\n%s",
		b.cfg.Name, sig.Side, sig.Symbol, res.Ticket, vol, entry, params.SL, params.TP, params.RR, sig.Reason)
	b.publish(ctx, events.TradeOpened, trade)
	return nil
}

func (b *Bot) place(ctx context.Context, sig models.Signal, params models.TradeParams) (res broker.OrderResult, err error) {
	span, ctx := tracing.Start(ctx, "bot.place_order",
		opentracing.Tag{Key: "bot", Value: b.cfg.Name},
		opentracing.Tag{Key: "side", Value: string(sig.Side)},
	)
	defer func() {
		tracing.Fail(span, err)
		span.Finish()
	}()

	res, err = b.broker.PlaceMarket(ctx, broker.OrderRequest{
		Symbol:  sig.Symbol,
		Side:    sig.Side,
		Volume:  params.Volume,
		SL:      params.SL,
		TP:      params.TP,
		Magic:   b.cfg.Magic,
		Comment: orderComment(b.cfg.Name),
	})
	if err != nil {
		return res, fmt.Errorf("place %s %s: %w", sig.Side, sig.Symbol, err)
	}
	span.SetTag("ticket", res.Ticket)
	logger.Info("[%s] opened #%d %s %s vol=%.2f @ %.5f", b.cfg.Name, res.Ticket, sig.Side, sig.Symbol, res.Volume, res.Price)
	return res, nil
}

// syncClosed закрывает в журнале сделки, которых больше нет среди позиций.
func (b *Bot) syncClosed(ctx context.Context, open []models.Position) error {
	trades, err := b.journal.OpenTrades(ctx, b.cfg.Name)
	if err != nil {
		return fmt.Errorf("open trades: %w", err)
	}
	live := make(map[int64]bool, len(open))
	for _, p := range open {
		live[p.Ticket] = true
	}

	for _, t := range trades {
		if live[t.Ticket] {
			continue
		}
		deals, err := b.broker.Deals(ctx, t.Ticket)
		if err != nil {
			logger.Error("[%s] deals #%d: %v", b.cfg.Name, t.Ticket, err)
			continue
		}
		exit, ok := summarizeDeals(deals)
		if !ok {
			// бридж ещё не отдал сделку выхода, попробуем на следующем баре
			logger.Warn("[%s] #%d gone but no OUT deals yet", b.cfg.Name, t.Ticket)
			continue
		}
		if err := b.journal.Close(ctx, t.Ticket, exit.price, exit.profit, exit.reason, exit.at); err != nil {
			logger.Error("[%s] journal close #%d: %v", b.cfg.Name, t.Ticket, err)
			continue
		}

		b.mu.Lock()
		delete(b.trail, helper.TrailKey(t.Symbol, t.Ticket))
		b.mu.Unlock()

		t.Status = models.TradeClosed
		t.ExitPrice = exit.price
		t.Profit = exit.profit
		t.ExitReason = exit.reason
		t.ClosedAt = exit.at

		emoji := "🟢"
		if t.IsLoss() {
			emoji = "🔴"
			until := b.now().Add(b.cfg.Risk.Cooldown)
			b.cooldowns.Set(t.Symbol, until)
			logger.Info("[%s] loss on %s, cooldown until %s", b.cfg.Name, t.Symbol, until.Format(time.RFC3339))
		}
		logger.Info("[%s] closed #%d %s exit=%.5f profit=%.2f R=%.2f (%s)",
			b.cfg.Name, t.Ticket, t.Symbol, exit.price, exit.profit, t.R(), exit.reason)
		b.notifier.Sendf("%s [%s] %s #%d закрыта: %.2f (%.2fR) | %s",
			emoji, b.cfg.Name, t.Symbol, t.Ticket, exit.profit, t.R(), exit.reason)
		b.publish(ctx, events.TradeClosed, t)
	}
	return nil
}

type exitSummary struct {
	price  float64
	profit float64
	reason string
	at     time.Time
}

// summarizeDeals: цена выхода считается средневзвешенной по OUT-сделкам,
// прибыль суммируется по всем сделкам позиции.
func summarizeDeals(deals []models.Deal) (exitSummary, bool) {
	var (
		out      exitSummary
		pv, vol  float64
		hasOut   bool
		lastTime time.Time
	)
	for _, d := range deals {
		out.profit += d.Profit
		if d.Entry != models.DealOut {
			continue
		}
		hasOut = true
		pv += d.Price * d.Volume
		vol += d.Volume
		if !d.Time.Before(lastTime) {
			lastTime = d.Time
			out.reason = d.Comment
		}
	}
	if !hasOut {
		return exitSummary{}, false
	}
	if vol > 0 {
		out.price = pv / vol
	}
	out.at = lastTime
	if out.reason == "" {
		out.reason = "closed"
	}
	return out, true
}

func (b *Bot) refreshSymbol(ctx context.Context) error {
	b.mu.Lock()
	have := b.info.TickSize > 0
	b.mu.Unlock()
	if have {
		return nil
	}
	info, err := b.broker.Symbol(ctx, b.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("symbol %s: %w", b.cfg.Symbol, err)
	}
	b.mu.Lock()
	b.info = info
	b.mu.Unlock()
	return nil
}

func (b *Bot) recordSignal(ctx context.Context, sig models.Signal, accepted bool) {
	if err := b.journal.RecordSignal(ctx, sig, accepted); err != nil {
		logger.Warn("[%s] record signal: %v", b.cfg.Name, err)
	}
}

func (b *Bot) publish(ctx context.Context, typ string, payload any) {
	if err := b.events.Publish(ctx, events.New(typ, b.cfg.Name, b.cfg.Symbol, payload)); err != nil {
		logger.Warn("[%s] publish %s: %v", b.cfg.Name, typ, err)
	}
}

// closedBars отрезает бар, который ещё формируется.
func closedBars(bars []models.Candle, tf models.Timeframe, now time.Time) []models.Candle {
	for len(bars) > 0 && bars[len(bars)-1].CloseTime(tf).After(now) {
		bars = bars[:len(bars)-1]
	}
	return bars
}

func lastATR(bars []models.Candle, period int) float64 {
	if period <= 0 {
		period = 14
	}
	highs, lows, closes := make([]float64, len(bars)), make([]float64, len(bars)), make([]float64, len(bars))
	for i, c := range bars {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}
	atr := indicators.ATR(highs, lows, closes, period)
	if len(atr) == 0 {
		return 0
	}
	return atr[len(atr)-1]
}

// lastSwings: последние подтверждённые swing low / swing high, 0 если нет.
func lastSwings(bars []models.Candle, p strategy.Params) (low, high float64) {
	highs, lows := make([]float64, len(bars)), make([]float64, len(bars))
	for i, c := range bars {
		highs[i], lows[i] = c.High, c.Low
	}
	swings := indicators.SwingPoints(highs, lows, p.Int("pivot_left"), p.Int("pivot_right"))
	if s, ok := indicators.LastSwingBefore(swings, indicators.SwingLow, len(bars)); ok {
		low = s.Price
	}
	if s, ok := indicators.LastSwingBefore(swings, indicators.SwingHigh, len(bars)); ok {
		high = s.Price
	}
	return low, high
}

func confirmPrompt(bot string, sig models.Signal, p models.TradeParams) string {
	return fmt.Sprintf("🔔 [%s] %s %s %s\nentry=%.5f SL=%.5f TP=%.5f\nvol=%.2f risk=%.2f%% RR=%.1f\n%s",
		bot, sig.Side, sig.Symbol, sig.Timeframe, p.Entry, p.SL, p.TP, p.Volume, p.RiskPct, p.RR, sig.Reason)
}

// MT5 режет комментарий до 31 символа.
func orderComment(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	return name
}
