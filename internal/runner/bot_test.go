package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"fxbot/internal/broker"
	"fxbot/internal/config"
	"fxbot/internal/events"
	"fxbot/internal/journal"
	"fxbot/internal/models"
	"fxbot/internal/notify"
	"fxbot/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSymbol = "XAUUSD"

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// trendBars: рост по 0.5 за бар, ATR = 0.8; donchian_breakout даёт BUY на последнем баре.
func trendBars(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := 100 + 0.5*float64(i)
		out[i] = models.Candle{
			Time:   t0.Add(time.Duration(i) * time.Hour),
			Open:   c - 0.45,
			High:   c + 0.3,
			Low:    c - 0.5,
			Close:  c,
			Volume: 100,
		}
	}
	return out
}

func testBotConfig() config.BotConfig {
	no := false
	return config.BotConfig{
		Name:      "donchian_xau",
		Strategy:  "donchian_breakout",
		Symbol:    testSymbol,
		Timeframe: "H1",
		Magic:     7,
		Poll:      time.Minute,
		Risk: config.RiskConfig{
			RiskPct:      1,
			SLMode:       "atr",
			SLATRMult:    1.5,
			SLBufferATR:  0.2,
			TakeProfitRR: 2,
			MaxPositions: 1,
			Cooldown:     time.Hour,
			Confirm:      &no,
			DryRun:       &no,
			Trail:        "mid",
		},
	}
}

type harness struct {
	bot     *Bot
	paper   *broker.Paper
	journal *journal.Memory
	events  *events.Recorder
	clock   time.Time
}

func newHarness(t *testing.T, cfg config.BotConfig, n notify.Notifier) *harness {
	t.Helper()
	h := &harness{
		paper:   broker.NewPaper(10000, nil),
		journal: journal.NewMemory(),
		events:  &events.Recorder{},
	}
	h.paper.SetSymbol(models.SymbolInfo{
		Name:       testSymbol,
		Digits:     2,
		TickSize:   0.01,
		TickValue:  1,
		VolumeMin:  0.01,
		VolumeMax:  100,
		VolumeStep: 0.01,
	})
	bars := trendBars(160)
	h.paper.AddBars(testSymbol, models.H1, bars...)
	h.clock = bars[159].CloseTime(models.H1).Add(time.Minute)

	deps := Deps{Broker: h.paper, Journal: h.journal, Events: h.events}
	if n != nil {
		deps.Notifier = n
	}
	b, err := NewBot(cfg, deps)
	require.NoError(t, err)
	b.now = func() time.Time { return h.clock }
	h.bot = b
	return h
}

// push добавляет закрытый бар и переводит часы за его закрытие.
func (h *harness) push(c models.Candle) {
	h.paper.AddBars(testSymbol, models.H1, c)
	h.clock = c.CloseTime(models.H1).Add(time.Minute)
}

func (h *harness) positions(t *testing.T) []models.Position {
	t.Helper()
	pos, err := h.paper.Positions(context.Background(), 7)
	require.NoError(t, err)
	return pos
}

type rejectAll struct{ prompts []string }

func (r *rejectAll) Send(string)          {}
func (r *rejectAll) Sendf(string, ...any) {}
func (r *rejectAll) Confirm(_ context.Context, prompt string, _ time.Duration) bool {
	r.prompts = append(r.prompts, prompt)
	return false
}

func TestTickOpensPositionWithTrace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testBotConfig(), nil)

	require.NoError(t, h.bot.Tick(ctx))

	pos := h.positions(t)
	require.Len(t, pos, 1)
	p := pos[0]
	assert.Equal(t, models.SideBuy, p.Side)
	assert.InDelta(t, 179.5, p.Entry, 1e-9)
	assert.InDelta(t, 178.3, p.SL, 1e-9)
	assert.InDelta(t, 181.9, p.TP, 1e-9)
	assert.InDelta(t, 0.83, p.Volume, 1e-9)
	assert.Equal(t, "donchian_xau", p.Comment)

	trades, err := h.journal.OpenTrades(ctx, "donchian_xau")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, p.Ticket, tr.Ticket)
	assert.Equal(t, "donchian_breakout", tr.Strategy)
	assert.Equal(t, t0.Add(159*time.Hour), tr.BarTime)
	assert.InDelta(t, 1.2, tr.RiskDist, 1e-9)
	require.Len(t, tr.Trace, 5)
	assert.Equal(t, "direction", tr.Trace[0].Name)

	sigs := h.journal.Signals()
	require.Len(t, sigs, 1)
	assert.True(t, sigs[0].Accepted)
	assert.Equal(t, "donchian_xau", sigs[0].Signal.Bot)
	assert.Equal(t, []string{events.TradeOpened}, h.events.Types())

	// тот же бар второй раз не оценивается
	require.NoError(t, h.bot.Tick(ctx))
	assert.Len(t, h.positions(t), 1)
	assert.Len(t, h.journal.Signals(), 1)

	st := h.bot.Status()
	assert.Equal(t, t0.Add(159*time.Hour), st.LastBar)
	assert.Equal(t, 1, st.Signals)
	assert.Equal(t, 1, st.Managed)
	assert.Empty(t, st.LastError)
}

func TestStopLossClosesTradeAndSetsCooldown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testBotConfig(), nil)
	require.NoError(t, h.bot.Tick(ctx))
	ticket := h.positions(t)[0].Ticket

	h.push(models.Candle{Time: t0.Add(160 * time.Hour), Open: 179.5, High: 179.6, Low: 178.0, Close: 178.2})
	require.Empty(t, h.positions(t))
	require.NoError(t, h.bot.Tick(ctx))

	tr, err := h.journal.ByTicket(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, tr.Status)
	assert.InDelta(t, 178.3, tr.ExitPrice, 1e-9)
	assert.InDelta(t, -99.6, tr.Profit, 1e-6)
	assert.Equal(t, "sl", tr.ExitReason)
	assert.InDelta(t, -1.0, tr.R(), 1e-6)
	assert.True(t, tr.IsLoss())

	losses, err := h.journal.Losses(ctx, journal.Filter{Bot: "donchian_xau"})
	require.NoError(t, err)
	assert.Len(t, losses, 1)

	until, ok := h.bot.cooldowns.Active(testSymbol, h.clock)
	require.True(t, ok)
	assert.Equal(t, h.clock.Add(time.Hour), until)
	assert.Equal(t, []string{events.TradeOpened, events.TradeClosed}, h.events.Types())
	assert.Zero(t, h.bot.Status().Managed)
}

func TestManageMovesStopToBreakEven(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testBotConfig(), nil)
	require.NoError(t, h.bot.Tick(ctx))

	h.push(models.Candle{Time: t0.Add(160 * time.Hour), Open: 179.5, High: 180.5, Low: 179.4, Close: 180.3})
	require.NoError(t, h.bot.Tick(ctx))

	pos := h.positions(t)
	require.Len(t, pos, 1)
	assert.InDelta(t, 179.5, pos[0].SL, 1e-9)
	assert.InDelta(t, 181.9, pos[0].TP, 1e-9)
	assert.Equal(t, []string{events.TradeOpened, events.TradeModified}, h.events.Types())
}

func TestManageAfterRestart(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		journal func(h *harness) journal.Store
	}{
		{name: "state from journal", journal: func(h *harness) journal.Store { return h.journal }},
		// сделки нет в журнале: риск берётся из SL позиции
		{name: "state from position", journal: func(*harness) journal.Store { return journal.NewMemory() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testBotConfig(), nil)
			require.NoError(t, h.bot.Tick(ctx))

			restarted, err := NewBot(testBotConfig(), Deps{Broker: h.paper, Journal: tt.journal(h), Events: h.events})
			require.NoError(t, err)
			restarted.now = func() time.Time { return h.clock }

			h.push(models.Candle{Time: t0.Add(160 * time.Hour), Open: 179.5, High: 180.5, Low: 179.4, Close: 180.3})
			require.NoError(t, restarted.Tick(ctx))

			pos := h.positions(t)
			require.Len(t, pos, 1)
			assert.InDelta(t, 179.5, pos[0].SL, 1e-9)
			assert.Equal(t, 1, restarted.Status().Managed)
		})
	}
}

// flakyBroker отклоняет ModifySLTP, пока failModify выставлен.
type flakyBroker struct {
	*broker.Paper
	failModify bool
}

func (f *flakyBroker) ModifySLTP(ctx context.Context, ticket int64, sl, tp float64) error {
	if f.failModify {
		return errors.New("bridge: modify rejected")
	}
	return f.Paper.ModifySLTP(ctx, ticket, sl, tp)
}

func TestManageRetriesBreakEvenAfterFailedModify(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testBotConfig(), nil)
	flaky := &flakyBroker{Paper: h.paper, failModify: true}
	h.bot.broker = flaky
	require.NoError(t, h.bot.Tick(ctx))

	// 0.67R: BE должен сработать, но брокер отказывает
	h.push(models.Candle{Time: t0.Add(160 * time.Hour), Open: 179.5, High: 180.3, Low: 179.4, Close: 180.1})
	require.NoError(t, h.bot.Tick(ctx))
	assert.InDelta(t, 178.3, h.positions(t)[0].SL, 1e-9)

	flaky.failModify = false
	h.push(models.Candle{Time: t0.Add(161 * time.Hour), Open: 180.1, High: 180.3, Low: 179.8, Close: 180.0})
	require.NoError(t, h.bot.Tick(ctx))

	pos := h.positions(t)
	require.Len(t, pos, 1)
	assert.InDelta(t, 179.5, pos[0].SL, 1e-9)
	assert.Equal(t, []string{events.TradeOpened, events.TradeModified}, h.events.Types())
}

func TestManageSkippedPartialKeepsBarForLock(t *testing.T) {
	ctx := context.Background()
	cfg := testBotConfig()
	// минимальный лот: половину закрыть нельзя
	cfg.Risk.RiskPct = 0.01
	h := newHarness(t, cfg, nil)
	require.NoError(t, h.bot.Tick(ctx))
	require.InDelta(t, 0.01, h.positions(t)[0].Volume, 1e-9)

	h.push(models.Candle{Time: t0.Add(160 * time.Hour), Open: 179.5, High: 180.5, Low: 179.4, Close: 180.3})
	require.NoError(t, h.bot.Tick(ctx))
	require.InDelta(t, 179.5, h.positions(t)[0].SL, 1e-9)

	// 1.17R: partial пропущен, на этом же баре срабатывает lock 0.3R
	h.push(models.Candle{Time: t0.Add(161 * time.Hour), Open: 180.3, High: 180.9, Low: 180.0, Close: 180.7})
	require.NoError(t, h.bot.Tick(ctx))

	pos := h.positions(t)
	require.Len(t, pos, 1)
	assert.InDelta(t, 0.01, pos[0].Volume, 1e-9)
	assert.InDelta(t, 179.86, pos[0].SL, 1e-9)
}

func TestRestartKeepsTimeStopCount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testBotConfig(), nil)
	require.NoError(t, h.bot.Tick(ctx))
	ticket := h.positions(t)[0].Ticket

	// 11 вялых баров без тиков бота (процесс лежит)
	for i := 160; i <= 170; i++ {
		h.push(models.Candle{Time: t0.Add(time.Duration(i) * time.Hour), Open: 179.5, High: 179.8, Low: 179.0, Close: 179.3})
	}
	restarted, err := NewBot(testBotConfig(), Deps{Broker: h.paper, Journal: h.journal, Events: h.events})
	require.NoError(t, err)
	restarted.now = func() time.Time { return h.clock }

	// двенадцатый бар от входа: тайм-стоп mid
	h.push(models.Candle{Time: t0.Add(171 * time.Hour), Open: 179.3, High: 179.8, Low: 179.0, Close: 179.3})
	require.NoError(t, restarted.Tick(ctx))

	assert.Empty(t, h.positions(t))
	tr, err := h.journal.ByTicket(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, tr.Status)
	assert.True(t, tr.IsLoss())
}

func TestTickDryRunAndPause(t *testing.T) {
	ctx := context.Background()

	t.Run("dry run", func(t *testing.T) {
		cfg := testBotConfig()
		yes := true
		cfg.Risk.DryRun = &yes
		h := newHarness(t, cfg, nil)

		require.NoError(t, h.bot.Tick(ctx))
		assert.Empty(t, h.positions(t))
		trades, err := h.journal.OpenTrades(ctx, cfg.Name)
		require.NoError(t, err)
		assert.Empty(t, trades)
		require.Len(t, h.journal.Signals(), 1)
		assert.True(t, h.journal.Signals()[0].Accepted)
		assert.Empty(t, h.events.Types())
	})

	t.Run("paused", func(t *testing.T) {
		h := newHarness(t, testBotConfig(), nil)
		h.bot.SetPaused(true)

		require.NoError(t, h.bot.Tick(ctx))
		assert.Empty(t, h.positions(t))
		assert.Empty(t, h.journal.Signals())
		assert.True(t, h.bot.Status().Paused)
	})
}

func TestConfirmRejectSetsCooldown(t *testing.T) {
	ctx := context.Background()
	cfg := testBotConfig()
	yes := true
	cfg.Risk.Confirm = &yes
	n := &rejectAll{}
	h := newHarness(t, cfg, n)

	require.NoError(t, h.bot.Tick(ctx))

	require.Len(t, n.prompts, 1)
	assert.Contains(t, n.prompts[0], "BUY XAUUSD H1")
	assert.Empty(t, h.positions(t))
	_, ok := h.bot.cooldowns.Active(testSymbol, h.clock)
	assert.True(t, ok)
	require.Len(t, h.journal.Signals(), 1)
	assert.False(t, h.journal.Signals()[0].Accepted)
	assert.Equal(t, []string{events.SignalRejected}, h.events.Types())
}

func TestFormingBarIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testBotConfig(), nil)
	// бар 159 ещё не закрыт
	h.clock = t0.Add(159*time.Hour + 30*time.Minute)

	require.NoError(t, h.bot.Tick(ctx))
	assert.Equal(t, t0.Add(158*time.Hour), h.bot.Status().LastBar)
}

func TestClosedBars(t *testing.T) {
	bars := trendBars(3)
	now := t0.Add(2*time.Hour + 10*time.Minute)

	got := closedBars(bars, models.H1, now)
	require.Len(t, got, 2)
	assert.Equal(t, t0.Add(time.Hour), got[1].Time)

	assert.Len(t, closedBars(bars, models.H1, t0.Add(3*time.Hour)), 3)
	assert.Empty(t, closedBars(bars[:1], models.H1, t0))
}

func TestSummarizeDeals(t *testing.T) {
	deals := []models.Deal{
		{Entry: models.DealIn, Price: 100, Volume: 1, Time: t0},
		{Entry: models.DealOut, Price: 102, Volume: 0.5, Profit: 100, Time: t0.Add(time.Hour), Comment: "manual"},
		{Entry: models.DealOut, Price: 101, Volume: 0.5, Profit: 50, Time: t0.Add(2 * time.Hour), Comment: "tp"},
	}
	got, ok := summarizeDeals(deals)
	require.True(t, ok)
	assert.InDelta(t, 101.5, got.price, 1e-9)
	assert.InDelta(t, 150, got.profit, 1e-9)
	assert.Equal(t, "tp", got.reason)
	assert.Equal(t, t0.Add(2*time.Hour), got.at)

	_, ok = summarizeDeals(deals[:1])
	assert.False(t, ok)
}

func TestCooldowns(t *testing.T) {
	c := NewCooldowns()
	_, ok := c.Active("EURUSD", t0)
	assert.False(t, ok)

	c.Set("EURUSD", t0.Add(time.Hour))
	c.Set("EURUSD", t0.Add(time.Minute))
	until, ok := c.Active("EURUSD", t0)
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Hour), until)

	_, ok = c.Active("EURUSD", t0.Add(time.Hour))
	assert.False(t, ok)
	_, ok = c.Active("XAUUSD", t0)
	assert.False(t, ok)
}

type windowSpy struct {
	strategy.Engine
	seen []int
	last time.Time
}

func (w *windowSpy) Evaluate(symbol string, tf models.Timeframe, candles []models.Candle, full bool) (models.Signal, strategy.Evaluation, error) {
	w.seen = append(w.seen, len(candles))
	w.last = candles[len(candles)-1].Time
	return w.Engine.Evaluate(symbol, tf, candles, full)
}

func TestTickEvaluatesFixedWindow(t *testing.T) {
	h := newHarness(t, testBotConfig(), nil)
	spy := &windowSpy{Engine: h.bot.engine}
	h.bot.engine = spy
	// формирующийся бар 160 не должен попасть в окно
	h.paper.AddBars(testSymbol, models.H1, models.Candle{Time: t0.Add(160 * time.Hour), Open: 179.5, High: 179.6, Low: 179.4, Close: 179.5})

	require.NoError(t, h.bot.Tick(context.Background()))
	require.Len(t, spy.seen, 1)
	assert.Equal(t, strategy.Window(spy.Engine), spy.seen[0])
	assert.Equal(t, t0.Add(159*time.Hour), spy.last)
}
