package analysis

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"fxbot/internal/journal"

	"gopkg.in/yaml.v2"
)

type Report struct {
	RunID       string         `yaml:"run_id"`
	GeneratedAt time.Time      `yaml:"generated_at"`
	Filter      FilterView     `yaml:"filter"`
	Narrow      float64        `yaml:"narrow_margin"`
	Strategies  []StrategyStat `yaml:"strategies"`
	Gates       []GateStat     `yaml:"gates"`
	Trades      []TradeReport  `yaml:"trades"`
}

type FilterView struct {
	Bot      string `yaml:"bot,omitempty"`
	Symbol   string `yaml:"symbol,omitempty"`
	Strategy string `yaml:"strategy,omitempty"`
	Since    string `yaml:"since,omitempty"`
	Limit    int    `yaml:"limit,omitempty"`
}

func filterView(f journal.Filter) FilterView {
	v := FilterView{Bot: f.Bot, Symbol: f.Symbol, Strategy: f.Strategy, Limit: f.Limit}
	if !f.Since.IsZero() {
		v.Since = f.Since.UTC().Format(time.RFC3339)
	}
	return v
}

type TradeReport struct {
	Ticket    int64     `yaml:"ticket"`
	Bot       string    `yaml:"bot"`
	Strategy  string    `yaml:"strategy"`
	Symbol    string    `yaml:"symbol"`
	Timeframe string    `yaml:"timeframe"`
	Side      string    `yaml:"side"`
	Entry     float64   `yaml:"entry"`
	SL        float64   `yaml:"sl"`
	Exit      float64   `yaml:"exit"`
	Profit    float64   `yaml:"profit"`
	R         float64   `yaml:"r"`
	Reason    string    `yaml:"exit_reason,omitempty"`
	BarTime   time.Time `yaml:"bar_time"`
	OpenedAt  time.Time `yaml:"opened_at"`
	ClosedAt  time.Time `yaml:"closed_at"`

	// Recomputed: сторона, которую стратегия видит на этих барах сейчас.
	Recomputed   string       `yaml:"recomputed_side"`
	Passed       bool         `yaml:"replay_passed"`
	FailedAt     string       `yaml:"failed_at,omitempty"`
	Drift        bool         `yaml:"drift"`
	DriftReasons []string     `yaml:"drift_reasons,omitempty"`
	Gates        []GateReport `yaml:"gates"`
	MAER         float64      `yaml:"mae_r"`
	MFER         float64      `yaml:"mfe_r"`
	Error        string       `yaml:"error,omitempty"`
}

type GateReport struct {
	Name      string  `yaml:"name"`
	Passed    bool    `yaml:"passed"`
	Value     float64 `yaml:"value"`
	Threshold float64 `yaml:"threshold"`
	Margin    float64 `yaml:"margin"`
	Narrow    bool    `yaml:"narrow"`
	// Recorded: margin из трассы на момент входа
	Recorded *float64 `yaml:"recorded_margin,omitempty"`
	Changed  bool     `yaml:"changed,omitempty"`
	Detail   string   `yaml:"detail,omitempty"`
}

type GateStat struct {
	Gate    string `yaml:"gate"`
	Seen    int    `yaml:"seen"`
	Narrow  int    `yaml:"narrow"`
	Failed  int    `yaml:"failed"`
	Changed int    `yaml:"changed"`
}

type StrategyStat struct {
	Strategy string  `yaml:"strategy"`
	Losses   int     `yaml:"losses"`
	AvgR     float64 `yaml:"avg_r"`
	Profit   float64 `yaml:"profit"`
	Drift    int     `yaml:"drift"`
}

func WriteYAML(w io.Writer, r *Report) error {
	out, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// WriteText: сводка и по таблице гейтов на каждую сделку.
func WriteText(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Loss analysis %s  (%s, narrow < %.2f)\n\n", r.RunID, r.GeneratedAt.Format(time.RFC3339), r.Narrow)

	fmt.Fprintln(tw, "STRATEGY\tLOSSES\tAVG R\tPROFIT\tDRIFT")
	for _, s := range r.Strategies {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%d\n", s.Strategy, s.Losses, s.AvgR, s.Profit, s.Drift)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "GATE\tSEEN\tNARROW\tFAILED\tCHANGED")
	for _, g := range r.Gates {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", g.Gate, g.Seen, g.Narrow, g.Failed, g.Changed)
	}

	for _, t := range r.Trades {
		fmt.Fprintf(tw, "\n#%d %s %s %s %s  entry=%.5f exit=%.5f  %.2fR  profit=%.2f  closed %s\n",
			t.Ticket, t.Bot, t.Symbol, t.Timeframe, t.Side, t.Entry, t.Exit, t.R, t.Profit, t.ClosedAt.Format("2006-01-02 15:04"))
		if t.Error != "" {
			fmt.Fprintf(tw, "  error: %s\n", t.Error)
			continue
		}
		fmt.Fprintf(tw, "  MAE %.2fR  MFE %.2fR  recomputed %s\n", t.MAER, t.MFER, t.Recomputed)
		if t.Drift {
			fmt.Fprintf(tw, "  DRIFT: %s\n", strings.Join(t.DriftReasons, "; "))
		}
		fmt.Fprintln(tw, "  GATE\tPASS\tVALUE\tTHRESHOLD\tMARGIN\tFLAG")
		for _, g := range t.Gates {
			fmt.Fprintf(tw, "  %s\t%s\t%.5g\t%.5g\t%+.3f\t%s\n", g.Name, passWord(g.Passed), g.Value, g.Threshold, g.Margin, gateFlag(g))
		}
	}
	return tw.Flush()
}

func gateFlag(g GateReport) string {
	var flags []string
	if g.Narrow {
		flags = append(flags, "NARROW")
	}
	if g.Changed {
		flags = append(flags, "CHANGED")
	}
	return strings.Join(flags, ",")
}
