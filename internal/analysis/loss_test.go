package analysis

import (
	"bytes"
	"context"
	"testing"
	"time"

	"fxbot/internal/broker"
	"fxbot/internal/journal"
	"fxbot/internal/models"
	"fxbot/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// uptrend: donchian_breakout на баре 159 даёт BUY, тело = 0.5625 ATR.
func uptrend(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := 100 + 0.5*float64(i)
		out[i] = models.Candle{Time: t0.Add(time.Duration(i) * time.Hour), Open: c - 0.45, High: c + 0.3, Low: c - 0.5, Close: c}
	}
	return out
}

func fixture(t *testing.T) (*journal.Memory, *broker.Paper) {
	t.Helper()
	ctx := context.Background()
	paper := broker.NewPaper(10000, nil)
	paper.AddBars("XAUUSD", models.H1, uptrend(160)...)
	paper.AddBars("XAUUSD", models.H1,
		models.Candle{Time: t0.Add(160 * time.Hour), Open: 179.5, High: 179.6, Low: 178.0, Close: 178.2},
		models.Candle{Time: t0.Add(161 * time.Hour), Open: 178.2, High: 180.9, Low: 178.1, Close: 180.8},
	)

	store := journal.NewMemory()
	signalBar := t0.Add(159 * time.Hour)
	trades := []*models.Trade{
		{
			Ticket: 1, Bot: "donchian_xau", Strategy: "donchian_breakout", Symbol: "XAUUSD", Timeframe: models.H1,
			Side: models.SideBuy, Volume: 0.83, Entry: 179.5, SL: 178.3, TP: 181.9, RiskDist: 1.2,
			BarTime: signalBar, OpenedAt: signalBar.Add(time.Hour), Status: models.TradeClosed,
			ExitPrice: 178.3, Profit: -99.6, ExitReason: "sl", ClosedAt: t0.Add(161 * time.Hour),
			Trace: []models.GateResult{
				{Name: "direction", Passed: true, Margin: 30},
				{Name: "impulse_body", Passed: false, Value: 0.48, Threshold: 0.5, Margin: -0.04},
			},
		},
		{
			Ticket: 2, Bot: "donchian_xau", Strategy: "donchian_breakout", Symbol: "XAUUSD", Timeframe: models.H1,
			Side: models.SideSell, Volume: 0.5, Entry: 179.5, SL: 180.7, TP: 177.1, RiskDist: 1.2,
			BarTime: signalBar, OpenedAt: signalBar.Add(time.Hour), Status: models.TradeClosed,
			ExitPrice: 180.7, Profit: -60, ExitReason: "sl", ClosedAt: t0.Add(162 * time.Hour),
		},
		{
			Ticket: 3, Bot: "old", Strategy: "martingale", Symbol: "XAUUSD", Timeframe: models.H1,
			Side: models.SideBuy, Entry: 150, RiskDist: 1, BarTime: signalBar, Status: models.TradeClosed,
			ExitPrice: 149, Profit: -10, ClosedAt: t0.Add(100 * time.Hour),
		},
	}
	for _, tr := range trades {
		_, err := store.Open(ctx, tr)
		require.NoError(t, err)
	}
	return store, paper
}

func byTicket(t *testing.T, rep *Report, ticket int64) TradeReport {
	t.Helper()
	for _, tr := range rep.Trades {
		if tr.Ticket == ticket {
			return tr
		}
	}
	t.Fatalf("ticket %d not in report", ticket)
	return TradeReport{}
}

func gate(t *testing.T, tr TradeReport, name string) GateReport {
	t.Helper()
	for _, g := range tr.Gates {
		if g.Name == name {
			return g
		}
	}
	t.Fatalf("gate %s not in #%d", name, tr.Ticket)
	return GateReport{}
}

func TestAnalyzerRun(t *testing.T) {
	store, paper := fixture(t)
	a := New(store, paper, nil, 0.2)

	rep, err := a.Run(context.Background(), journal.Filter{Strategy: "donchian_breakout"})
	require.NoError(t, err)
	require.Len(t, rep.Trades, 2)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 0.2, rep.Narrow)

	buy := byTicket(t, rep, 1)
	require.Empty(t, buy.Error)
	assert.Equal(t, "BUY", buy.Recomputed)
	assert.True(t, buy.Passed)
	assert.Len(t, buy.Gates, 5)

	body := gate(t, buy, "impulse_body")
	assert.True(t, body.Passed)
	assert.InDelta(t, 0.125, body.Margin, 1e-6)
	assert.True(t, body.Narrow)
	assert.True(t, body.Changed)
	require.NotNil(t, body.Recorded)
	assert.InDelta(t, -0.04, *body.Recorded, 1e-9)

	brk := gate(t, buy, "channel_break")
	assert.InDelta(t, 0.25, brk.Margin, 1e-6)
	assert.False(t, brk.Narrow)

	assert.True(t, buy.Drift)
	assert.Equal(t, []string{"impulse_body fail -> pass"}, buy.DriftReasons)
	assert.InDelta(t, 1.25, buy.MAER, 1e-6)
	assert.InDelta(t, 0.1/1.2, buy.MFER, 1e-6)
	assert.InDelta(t, -1, buy.R, 1e-6)

	sell := byTicket(t, rep, 2)
	require.Empty(t, sell.Error)
	assert.False(t, sell.Passed)
	assert.Equal(t, "direction", sell.FailedAt)
	assert.Equal(t, []string{"side SELL -> BUY"}, sell.DriftReasons)
	assert.False(t, gate(t, sell, "impulse_body").Passed)
	// бары 160..161: high 180.9, low 178.0
	assert.InDelta(t, 1.4/1.2, sell.MAER, 1e-6)
	assert.InDelta(t, 1.5/1.2, sell.MFER, 1e-6)

	require.Len(t, rep.Strategies, 1)
	st := rep.Strategies[0]
	assert.Equal(t, "donchian_breakout", st.Strategy)
	assert.Equal(t, 2, st.Losses)
	assert.InDelta(t, -1, st.AvgR, 1e-6)
	assert.InDelta(t, -159.6, st.Profit, 1e-6)
	assert.Equal(t, 2, st.Drift)

	require.NotEmpty(t, rep.Gates)
	top := rep.Gates[0]
	assert.Equal(t, GateStat{Gate: "impulse_body", Seen: 2, Narrow: 1, Failed: 1, Changed: 1}, top)
}

func TestAnalyzerPerTradeErrors(t *testing.T) {
	store, paper := fixture(t)
	a := New(store, paper, nil, 0)
	assert.Equal(t, DefaultNarrow, a.narrow)

	rep, err := a.Run(context.Background(), journal.Filter{Bot: "old"})
	require.NoError(t, err)
	require.Len(t, rep.Trades, 1)
	assert.Contains(t, rep.Trades[0].Error, "martingale")
	assert.Empty(t, rep.Gates)
}

func TestAnalyzerLimit(t *testing.T) {
	store, paper := fixture(t)
	rep, err := New(store, paper, nil, 0.1).Run(context.Background(), journal.Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, rep.Trades, 1)
	// новые первыми
	assert.Equal(t, int64(2), rep.Trades[0].Ticket)
	assert.Equal(t, 1, rep.Filter.Limit)
}

func TestExcursion(t *testing.T) {
	bars := []models.Candle{{High: 102, Low: 99}, {High: 104, Low: 100}}

	mae, mfe, err := Excursion(models.SideBuy, 100, 2, bars)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mae, 1e-9)
	assert.InDelta(t, 2, mfe, 1e-9)

	mae, mfe, err = Excursion(models.SideSell, 100, 2, bars)
	require.NoError(t, err)
	assert.InDelta(t, 2, mae, 1e-9)
	assert.InDelta(t, 0.5, mfe, 1e-9)

	_, _, err = Excursion(models.SideBuy, 100, 2, nil)
	assert.Error(t, err)
	_, _, err = Excursion(models.SideBuy, 100, 0, bars)
	assert.Error(t, err)
}

func TestReportWriters(t *testing.T) {
	store, paper := fixture(t)
	rep, err := New(store, paper, nil, 0.2).Run(context.Background(), journal.Filter{})
	require.NoError(t, err)

	var y bytes.Buffer
	require.NoError(t, WriteYAML(&y, rep))
	var back map[string]any
	require.NoError(t, yaml.Unmarshal(y.Bytes(), &back))
	assert.Equal(t, rep.RunID, back["run_id"])
	assert.Contains(t, y.String(), "recomputed_side: BUY")

	var txt bytes.Buffer
	require.NoError(t, WriteText(&txt, rep))
	out := txt.String()
	assert.Contains(t, out, "Loss analysis "+rep.RunID)
	assert.Contains(t, out, "#1 donchian_xau XAUUSD H1 BUY")
	assert.Contains(t, out, "NARROW,CHANGED")
	assert.Contains(t, out, "DRIFT: side SELL -> BUY")
	assert.Contains(t, out, "error: ")
}

func TestSignalBarsMatchLiveWindow(t *testing.T) {
	store, paper := fixture(t)
	a := New(store, paper, nil, 0.2)
	eng, err := strategy.NewEngine("donchian_breakout", nil)
	require.NoError(t, err)

	tr, err := store.ByTicket(context.Background(), 1)
	require.NoError(t, err)
	bars, err := a.signalBars(context.Background(), tr, strategy.Window(eng))
	require.NoError(t, err)
	require.Len(t, bars, strategy.Window(eng))
	assert.Equal(t, tr.BarTime, bars[len(bars)-1].Time)
}
