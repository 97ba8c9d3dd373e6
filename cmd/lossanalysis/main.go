package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"fxbot/internal/analysis"
	"fxbot/internal/broker"
	"fxbot/internal/config"
	"fxbot/internal/journal"
	"fxbot/pkg/db"
	"fxbot/pkg/logger"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

type options struct {
	config   string
	bot      string
	symbol   string
	strategy string
	since    string
	limit    int
	format   string
	narrow   float64
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("lossanalysis", pflag.ContinueOnError)
	fs.StringVar(&o.config, "config", "configs/values_local.yaml", "path to the bot config")
	fs.StringVar(&o.bot, "bot", "", "only trades of this bot")
	fs.StringVar(&o.symbol, "symbol", "", "only trades on this symbol")
	fs.StringVar(&o.strategy, "strategy", "", "only trades of this strategy")
	fs.StringVar(&o.since, "since", "", "closed after: 2006-01-02, RFC3339 or a duration back from now (720h)")
	fs.IntVar(&o.limit, "limit", 50, "max trades, 0 = all")
	fs.StringVar(&o.format, "format", "text", "report format: yaml|text")
	fs.Float64Var(&o.narrow, "narrow", analysis.DefaultNarrow, "margin below which a passed gate is NARROW")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.format = strings.ToLower(o.format)
	if o.format != "yaml" && o.format != "text" {
		return o, fmt.Errorf("unknown format %q, want yaml|text", o.format)
	}
	return o, nil
}

func parseSince(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("bad --since %q", raw)
	}
	return now.Add(-d), nil
}

func run(ctx context.Context, o options, out io.Writer) error {
	cfg, err := config.Load(o.config)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	if _, err := logger.Init(logger.Config{Level: cfg.Log.Level, Stderr: true}); err != nil {
		return errors.Wrap(err, "init logger")
	}
	defer logger.Sync()

	if cfg.DB == "" {
		return errors.New("db_dsn is empty: loss analysis reads the Postgres journal")
	}
	since, err := parseSince(o.since, time.Now())
	if err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.DB})
	if err != nil {
		return errors.Wrap(err, "connect journal")
	}
	txm := db.NewPgTxManager(pool)
	defer txm.Close()

	bridge, err := broker.NewBridgeClient(cfg.Bridge)
	if err != nil {
		return errors.Wrap(err, "bridge client")
	}

	params := func(bot string) map[string]float64 {
		if b, ok := cfg.Bot(bot); ok {
			return b.Params
		}
		return nil
	}
	a := analysis.New(journal.NewPostgres(txm), bridge, params, o.narrow)
	rep, err := a.Run(ctx, journal.Filter{
		Bot:      o.bot,
		Symbol:   o.symbol,
		Strategy: o.strategy,
		Since:    since,
		Limit:    o.limit,
	})
	if err != nil {
		return errors.Wrap(err, "analyze losses")
	}

	if o.format == "yaml" {
		return errors.Wrap(analysis.WriteYAML(out, rep), "write yaml")
	}
	return errors.Wrap(analysis.WriteText(out, rep), "write report")
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, o, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "lossanalysis: %+v\n", err)
		os.Exit(1)
	}
}
