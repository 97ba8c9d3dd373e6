package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fxbot/internal/models"
	"fxbot/internal/strategy"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	configFilePathENV = "CONFIG_FILE"
	defaultConfigFile = "values_local.yaml"
	configDir         = "configs"
)

// env -> ключ конфига
var envOverrides = map[string]string{
	"telegram.token":   "TELEGRAM_TOKEN",
	"telegram.chat_id": "TELEGRAM_CHAT_ID",
	"db_dsn":           "DATABASE_DSN",
	"bridge.url":       "BRIDGE_URL",
	"bridge.token":     "BRIDGE_TOKEN",
	"amqp_uri":         "AMQP_URI",
	"log.level":        "LOG_LEVEL",
}

type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	DB       string         `mapstructure:"db_dsn"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	AMQPURI  string         `mapstructure:"amqp_uri"`
	Jaeger   JaegerConfig   `mapstructure:"jaeger"`
	Log      LogConfig      `mapstructure:"log"`

	// Дефолты риска, бот наследует всё, что у него не задано
	Risk RiskConfig  `mapstructure:"risk"`
	Bots []BotConfig `mapstructure:"bots"`
}

type ServiceConfig struct {
	Name      string `mapstructure:"name"`
	Host      string `mapstructure:"host"`
	AdminPort int    `mapstructure:"admin_port"`
}

type TelegramConfig struct {
	Token          string        `mapstructure:"token"`
	ChatID         int64         `mapstructure:"chat_id"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
}

type BridgeConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Stream включает WebSocket-фид закрытых баров вместо чистого поллинга.
	Stream bool `mapstructure:"stream"`
	// Paper: котировки с бриджа, сделки симулируются локально.
	Paper        bool    `mapstructure:"paper"`
	PaperBalance float64 `mapstructure:"paper_balance"`
}

type JaegerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type RiskConfig struct {
	RiskPct      float64       `mapstructure:"risk_pct"`
	SLMode       string        `mapstructure:"sl_mode"` // atr | swing
	SLATRMult    float64       `mapstructure:"sl_atr_mult"`
	SLBufferATR  float64       `mapstructure:"sl_buffer_atr"`
	TakeProfitRR float64       `mapstructure:"take_profit_rr"`
	MaxPositions int           `mapstructure:"max_positions"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
	Confirm      *bool         `mapstructure:"confirm"`
	DryRun       *bool         `mapstructure:"dry_run"`
	// Trail: имя пресета сопровождения (safe/mid/aggr)
	Trail  string               `mapstructure:"trail"`
	Manage *models.ManageConfig `mapstructure:"manage"`
}

func (r RiskConfig) ConfirmRequired() bool { return r.Confirm != nil && *r.Confirm }
func (r RiskConfig) IsDryRun() bool        { return r.DryRun != nil && *r.DryRun }

// ManageRules returns the explicit manage block or the trail preset.
func (r RiskConfig) ManageRules() models.ManageConfig {
	if r.Manage != nil {
		return *r.Manage
	}
	mc, _ := models.ManageFromPreset(r.Trail)
	return mc
}

// inherit fills zero fields from def.
func (r RiskConfig) inherit(def RiskConfig) RiskConfig {
	if r.RiskPct == 0 {
		r.RiskPct = def.RiskPct
	}
	if r.SLMode == "" {
		r.SLMode = def.SLMode
	}
	if r.SLATRMult == 0 {
		r.SLATRMult = def.SLATRMult
	}
	if r.SLBufferATR == 0 {
		r.SLBufferATR = def.SLBufferATR
	}
	if r.TakeProfitRR == 0 {
		r.TakeProfitRR = def.TakeProfitRR
	}
	if r.MaxPositions == 0 {
		r.MaxPositions = def.MaxPositions
	}
	if r.Cooldown == 0 {
		r.Cooldown = def.Cooldown
	}
	if r.Confirm == nil {
		r.Confirm = def.Confirm
	}
	if r.DryRun == nil {
		r.DryRun = def.DryRun
	}
	if r.Trail == "" {
		r.Trail = def.Trail
	}
	if r.Manage == nil {
		r.Manage = def.Manage
	}
	return r
}

type BotConfig struct {
	Name      string             `mapstructure:"name"`
	Strategy  string             `mapstructure:"strategy"`
	Symbol    string             `mapstructure:"symbol"`
	Timeframe string             `mapstructure:"timeframe"`
	Magic     int64              `mapstructure:"magic"`
	Poll      time.Duration      `mapstructure:"poll_interval"`
	Params    map[string]float64 `mapstructure:"params"`
	Risk      RiskConfig         `mapstructure:"risk"`
}

func (b BotConfig) TF() models.Timeframe { return models.ParseTimeframe(b.Timeframe) }

// Bot finds a bot section by name.
func (c *Config) Bot(name string) (BotConfig, bool) {
	for _, b := range c.Bots {
		if b.Name == name {
			return b, true
		}
	}
	return BotConfig{}, false
}

// NewConfig reads configs/<CONFIG_FILE> (values_local.yaml by default).
func NewConfig() (*Config, error) {
	name := os.Getenv(configFilePathENV)
	if name == "" {
		name = defaultConfigFile
	}
	return Load(filepath.Join(configDir, name))
}

// Load reads the yaml file at path, applies .env and env overrides, fills
// bot sections from the risk defaults and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)
	for key, env := range envOverrides {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "fxbot")
	v.SetDefault("service.host", "0.0.0.0")
	v.SetDefault("service.admin_port", 8081)
	v.SetDefault("telegram.confirm_timeout", "60s")
	v.SetDefault("bridge.timeout", "10s")
	v.SetDefault("bridge.paper_balance", 10000.0)
	v.SetDefault("log.level", "info")

	v.SetDefault("risk.risk_pct", 1.0)
	v.SetDefault("risk.sl_mode", "atr")
	v.SetDefault("risk.sl_atr_mult", 1.5)
	v.SetDefault("risk.sl_buffer_atr", 0.2)
	v.SetDefault("risk.take_profit_rr", 2.0)
	v.SetDefault("risk.max_positions", 1)
	v.SetDefault("risk.cooldown", "1h")
	v.SetDefault("risk.trail", "mid")
}

func (c *Config) applyDefaults() {
	no := false
	if c.Risk.Confirm == nil {
		c.Risk.Confirm = &no
	}
	if c.Risk.DryRun == nil {
		c.Risk.DryRun = &no
	}
	for i := range c.Bots {
		b := &c.Bots[i]
		b.Risk = b.Risk.inherit(c.Risk)
		if b.Poll == 0 {
			b.Poll = 10 * time.Second
		}
		b.Timeframe = string(b.TF())
		if b.Name == "" {
			b.Name = fmt.Sprintf("%s_%s_%s", b.Strategy, strings.ToLower(b.Symbol), strings.ToLower(b.Timeframe))
		}
	}
}

// Validate собирает все ошибки конфига разом.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Bots) == 0 {
		errs = append(errs, errors.New("no bots configured"))
	}
	names := map[string]bool{}
	magics := map[int64]string{}
	for _, b := range c.Bots {
		if names[b.Name] {
			errs = append(errs, fmt.Errorf("bot %s: duplicate name", b.Name))
		}
		names[b.Name] = true
		if other, ok := magics[b.Magic]; ok {
			errs = append(errs, fmt.Errorf("bot %s: magic %d already used by %s", b.Name, b.Magic, other))
		}
		magics[b.Magic] = b.Name

		if !strategy.Known(b.Strategy) {
			errs = append(errs, fmt.Errorf("bot %s: unknown strategy %q (known: %s)", b.Name, b.Strategy, strings.Join(strategy.Names(), ", ")))
		}
		if b.Symbol == "" {
			errs = append(errs, fmt.Errorf("bot %s: empty symbol", b.Name))
		}
		if !b.TF().Valid() {
			errs = append(errs, fmt.Errorf("bot %s: bad timeframe %q", b.Name, b.Timeframe))
		}
		if b.Poll <= 0 {
			errs = append(errs, fmt.Errorf("bot %s: poll_interval must be positive", b.Name))
		}
		errs = append(errs, b.Risk.validate(b.Name)...)
	}
	return errors.Join(errs...)
}

func (r RiskConfig) validate(bot string) []error {
	var errs []error
	if r.RiskPct <= 0 || r.RiskPct > 10 {
		errs = append(errs, fmt.Errorf("bot %s: risk_pct %.2f out of (0, 10]", bot, r.RiskPct))
	}
	if r.SLMode != "atr" && r.SLMode != "swing" {
		errs = append(errs, fmt.Errorf("bot %s: sl_mode %q, want atr|swing", bot, r.SLMode))
	}
	if r.SLATRMult <= 0 {
		errs = append(errs, fmt.Errorf("bot %s: sl_atr_mult must be positive", bot))
	}
	if r.TakeProfitRR <= 0 {
		errs = append(errs, fmt.Errorf("bot %s: take_profit_rr must be positive", bot))
	}
	if r.MaxPositions < 1 {
		errs = append(errs, fmt.Errorf("bot %s: max_positions must be >= 1", bot))
	}
	if _, ok := models.TrailPresets[r.Trail]; !ok && r.Manage == nil {
		errs = append(errs, fmt.Errorf("bot %s: unknown trail preset %q", bot, r.Trail))
	}
	return errs
}
