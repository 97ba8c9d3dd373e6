package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fxbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
service:
  name: fxbot-test
  admin_port: 9090
bridge:
  url: http://localhost:7000
risk:
  risk_pct: 0.5
  take_profit_rr: 3
  cooldown: 30m
  dry_run: true
bots:
  - name: gold_pullback
    strategy: ema_pullback
    symbol: XAUUSD
    timeframe: m15
    magic: 1001
    params:
      adx_min: 22
  - name: btc_breakout
    strategy: donchian_breakout
    symbol: BTCUSD
    timeframe: H1
    magic: 1002
    poll_interval: 30s
    risk:
      risk_pct: 1
      sl_mode: swing
      trail: aggr
      dry_run: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "values_test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "fxbot-test", cfg.Service.Name)
	assert.Equal(t, 9090, cfg.Service.AdminPort)
	assert.Equal(t, 10*time.Second, cfg.Bridge.Timeout)
	require.Len(t, cfg.Bots, 2)

	gold := cfg.Bots[0]
	assert.Equal(t, models.M15, gold.TF())
	assert.Equal(t, 10*time.Second, gold.Poll)
	assert.Equal(t, 0.5, gold.Risk.RiskPct)
	assert.Equal(t, 3.0, gold.Risk.TakeProfitRR)
	assert.Equal(t, "atr", gold.Risk.SLMode)
	assert.Equal(t, 30*time.Minute, gold.Risk.Cooldown)
	assert.True(t, gold.Risk.IsDryRun())
	assert.False(t, gold.Risk.ConfirmRequired())
	assert.Equal(t, 22.0, gold.Params["adx_min"])

	btc, ok := cfg.Bot("btc_breakout")
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, btc.Poll)
	assert.Equal(t, "swing", btc.Risk.SLMode)
	assert.False(t, btc.Risk.IsDryRun())
	assert.Equal(t, 3.0, btc.Risk.ManageRules().TrailATRMult)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BRIDGE_URL", "http://bridge:9000")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("DATABASE_DSN", "postgres://u:p@db/fx")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "http://bridge:9000", cfg.Bridge.URL)
	assert.Equal(t, int64(42), cfg.Telegram.ChatID)
	assert.Equal(t, "postgres://u:p@db/fx", cfg.DB)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "no bots",
			body: "service:\n  name: x\n",
			want: "no bots configured",
		},
		{
			name: "duplicate magic",
			body: `
bots:
  - {name: a, strategy: heiken_trend, symbol: EURUSD, timeframe: H1, magic: 7}
  - {name: b, strategy: heiken_trend, symbol: GBPUSD, timeframe: H1, magic: 7}
`,
			want: "magic 7 already used by a",
		},
		{
			name: "unknown strategy",
			body: `
bots:
  - {name: a, strategy: grid, symbol: EURUSD, timeframe: H1, magic: 1}
`,
			want: `unknown strategy "grid"`,
		},
		{
			name: "bad timeframe",
			body: `
bots:
  - {name: a, strategy: heiken_trend, symbol: EURUSD, timeframe: H2, magic: 1}
`,
			want: `bad timeframe "H2"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
