package journal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fxbot/internal/models"
	"fxbot/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
)

const schema = `
create table if not exists trades (
    id          bigserial primary key,
    ticket      bigint not null unique,
    bot         text not null,
    strategy    text not null,
    symbol      text not null,
    timeframe   text not null,
    side        text not null,
    volume      double precision not null,
    entry       double precision not null,
    sl          double precision not null,
    tp          double precision not null,
    risk_dist   double precision not null,
    opened_at   timestamptz not null,
    bar_time    timestamptz not null,
    status      text not null default 'OPEN',
    exit_price  double precision not null default 0,
    closed_at   timestamptz,
    profit      double precision not null default 0,
    exit_reason text not null default '',
    trace       jsonb not null default '[]'
);
create index if not exists trades_bot_status_idx on trades (bot, status);
create index if not exists trades_closed_at_idx on trades (closed_at desc);

create table if not exists signals (
    id         bigserial primary key,
    bot        text not null,
    strategy   text not null,
    symbol     text not null,
    timeframe  text not null,
    side       text not null,
    price      double precision not null,
    atr        double precision not null,
    bar_time   timestamptz not null,
    reason     text not null,
    accepted   boolean not null,
    trace      jsonb not null default '[]',
    created_at timestamptz not null default now()
);
`

const tradeColumns = `id, ticket, bot, strategy, symbol, timeframe, side, volume, entry, sl, tp, risk_dist,
    opened_at, bar_time, status, exit_price, closed_at, profit, exit_reason, trace`

// Postgres: журнал в Postgres через pgx и менеджер транзакций pkg/db.
type Postgres struct {
	tx db.TxManager
}

func NewPostgres(tx db.TxManager) *Postgres {
	return &Postgres{tx: tx}
}

// EnsureSchema creates the tables when they are missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.tx.Conn().Exec(ctx, schema); err != nil {
		return fmt.Errorf("journal schema: %w", err)
	}
	return nil
}

func (p *Postgres) Open(ctx context.Context, t *models.Trade) (id int64, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("journal.Open #%d: %w", t.Ticket, err)
		}
	}()
	trace, err := sonic.Marshal(traceOrEmpty(t.Trace))
	if err != nil {
		return 0, err
	}
	status := t.Status
	if status == "" {
		status = models.TradeOpen
	}
	err = p.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctxTx, `
insert into trades (ticket, bot, strategy, symbol, timeframe, side, volume, entry, sl, tp, risk_dist,
                    opened_at, bar_time, status, trace)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
returning id`,
			t.Ticket, t.Bot, t.Strategy, t.Symbol, string(t.Timeframe), string(t.Side), t.Volume, t.Entry,
			t.SL, t.TP, t.RiskDist, t.OpenedAt, t.BarTime, string(status), trace,
		).Scan(&id)
	})
	if err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

func (p *Postgres) Close(ctx context.Context, ticket int64, exitPrice, profit float64, reason string, closedAt time.Time) error {
	tag, err := p.tx.Conn().Exec(ctx, `
update trades
   set status = 'CLOSED', exit_price = $2, profit = $3, exit_reason = $4, closed_at = $5
 where ticket = $1`, ticket, exitPrice, profit, reason, closedAt)
	if err != nil {
		return fmt.Errorf("journal.Close #%d: %w", ticket, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("journal.Close #%d: %w", ticket, ErrNotFound)
	}
	return nil
}

func (p *Postgres) ByTicket(ctx context.Context, ticket int64) (*models.Trade, error) {
	rows, err := p.tx.Conn().Query(ctx, `select `+tradeColumns+` from trades where ticket = $1`, ticket)
	if err != nil {
		return nil, fmt.Errorf("journal.ByTicket #%d: %w", ticket, err)
	}
	out, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("journal.ByTicket #%d: %w", ticket, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("journal #%d: %w", ticket, ErrNotFound)
	}
	return out[0], nil
}

func (p *Postgres) OpenTrades(ctx context.Context, bot string) ([]*models.Trade, error) {
	q := `select ` + tradeColumns + ` from trades where status = 'OPEN'`
	var args []any
	if bot != "" {
		q += ` and bot = $1`
		args = append(args, bot)
	}
	rows, err := p.tx.Conn().Query(ctx, q+` order by id`, args...)
	if err != nil {
		return nil, fmt.Errorf("journal.OpenTrades: %w", err)
	}
	out, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("journal.OpenTrades: %w", err)
	}
	return out, nil
}

func (p *Postgres) Losses(ctx context.Context, f Filter) ([]*models.Trade, error) {
	q, args := lossesQuery(f)
	rows, err := p.tx.Conn().Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal.Losses: %w", err)
	}
	out, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("journal.Losses: %w", err)
	}
	return out, nil
}

// lossesQuery строит where по непустым полям фильтра.
func lossesQuery(f Filter) (string, []any) {
	where := []string{"status = 'CLOSED'", "profit < 0"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.Bot != "" {
		add("bot = ?", f.Bot)
	}
	if f.Symbol != "" {
		add("symbol = ?", f.Symbol)
	}
	if f.Strategy != "" {
		add("strategy = ?", f.Strategy)
	}
	if !f.Since.IsZero() {
		add("closed_at >= ?", f.Since)
	}
	q := `select ` + tradeColumns + ` from trades where ` + strings.Join(where, " and ") + ` order by closed_at desc`
	if f.Limit > 0 {
		q += ` limit ` + strconv.Itoa(f.Limit)
	}
	return q, args
}

func (p *Postgres) RecordSignal(ctx context.Context, sig models.Signal, accepted bool) error {
	trace, err := sonic.Marshal(traceOrEmpty(sig.Trace))
	if err != nil {
		return fmt.Errorf("journal.RecordSignal: %w", err)
	}
	_, err = p.tx.Conn().Exec(ctx, `
insert into signals (bot, strategy, symbol, timeframe, side, price, atr, bar_time, reason, accepted, trace)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sig.Bot, sig.Strategy, sig.Symbol, string(sig.Timeframe), string(sig.Side), sig.Price, sig.ATR,
		sig.BarTime, sig.Reason, accepted, trace)
	if err != nil {
		return fmt.Errorf("journal.RecordSignal: %w", err)
	}
	return nil
}

func scanTrades(rows pgx.Rows) ([]*models.Trade, error) {
	defer rows.Close()
	var out []*models.Trade
	for rows.Next() {
		var (
			t                models.Trade
			tf, side, status string
			closedAt         *time.Time
			trace            []byte
		)
		if err := rows.Scan(&t.ID, &t.Ticket, &t.Bot, &t.Strategy, &t.Symbol, &tf, &side, &t.Volume,
			&t.Entry, &t.SL, &t.TP, &t.RiskDist, &t.OpenedAt, &t.BarTime, &status, &t.ExitPrice,
			&closedAt, &t.Profit, &t.ExitReason, &trace); err != nil {
			return nil, err
		}
		t.Timeframe = models.Timeframe(tf)
		t.Side = models.Side(side)
		t.Status = models.TradeStatus(status)
		if closedAt != nil {
			t.ClosedAt = *closedAt
		}
		if len(trace) > 0 {
			if err := sonic.Unmarshal(trace, &t.Trace); err != nil {
				return nil, fmt.Errorf("trace of #%d: %w", t.Ticket, err)
			}
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return out, nil
}

func traceOrEmpty(tr []models.GateResult) []models.GateResult {
	if tr == nil {
		return []models.GateResult{}
	}
	return tr
}
