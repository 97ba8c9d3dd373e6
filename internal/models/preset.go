package models

// ManageConfig: правила сопровождения открытой позиции (всё в R).
type ManageConfig struct {
	BETriggerR float64 `mapstructure:"be_trigger_r" yaml:"be_trigger_r"`
	BEOffsetR  float64 `mapstructure:"be_offset_r" yaml:"be_offset_r"`

	LockTriggerR float64 `mapstructure:"lock_trigger_r" yaml:"lock_trigger_r"`
	LockOffsetR  float64 `mapstructure:"lock_offset_r" yaml:"lock_offset_r"`

	TimeStopBars    int     `mapstructure:"time_stop_bars" yaml:"time_stop_bars"`
	TimeStopMinMFER float64 `mapstructure:"time_stop_min_mfe_r" yaml:"time_stop_min_mfe_r"`

	PartialEnabled   bool    `mapstructure:"partial_enabled" yaml:"partial_enabled"`
	PartialTriggerR  float64 `mapstructure:"partial_trigger_r" yaml:"partial_trigger_r"`
	PartialCloseFrac float64 `mapstructure:"partial_close_frac" yaml:"partial_close_frac"`

	// 0: ATR-трейлинг выключен
	TrailATRMult float64 `mapstructure:"trail_atr_mult" yaml:"trail_atr_mult"`
}

type TrailingPreset struct {
	Name        string
	Description string
	Apply       func(tr *ManageConfig)
}

var TrailPresets = map[string]TrailingPreset{
	"safe": {
		Name:        "safe",
		Description: "Рано защищаем сделку, меньше откатов",
		Apply: func(tr *ManageConfig) {
			// BE: рано в безубыток
			tr.BETriggerR = 0.4
			tr.BEOffsetR = 0.0

			tr.LockTriggerR = 0.8
			tr.LockOffsetR = 0.2

			// TimeStop: быстро режем слабые входы
			tr.TimeStopBars = 8
			tr.TimeStopMinMFER = 0.3

			tr.PartialEnabled = true
			tr.PartialTriggerR = 0.8
			tr.PartialCloseFrac = 0.6

			tr.TrailATRMult = 0
		},
	},

	"mid": {
		Name:        "mid",
		Description: "Компромисс между защитой и потенциалом",
		Apply: func(tr *ManageConfig) {
			tr.BETriggerR = 0.6
			tr.BEOffsetR = 0.0

			tr.LockTriggerR = 1.0
			tr.LockOffsetR = 0.3

			tr.TimeStopBars = 12
			tr.TimeStopMinMFER = 0.4

			tr.PartialEnabled = true
			tr.PartialTriggerR = 1.0
			tr.PartialCloseFrac = 0.5

			tr.TrailATRMult = 0
		},
	},

	"aggr": {
		Name:        "aggr",
		Description: "Даём цене свободу, выходим по ATR-трейлу",
		Apply: func(tr *ManageConfig) {
			// BE: позже, даём тренду развиться
			tr.BETriggerR = 1.0
			tr.BEOffsetR = 0.1

			tr.LockTriggerR = 1.5
			tr.LockOffsetR = 0.5

			tr.TimeStopBars = 20
			tr.TimeStopMinMFER = 0.6

			tr.PartialEnabled = false
			tr.PartialTriggerR = 0.0
			tr.PartialCloseFrac = 0.0

			tr.TrailATRMult = 3.0
		},
	},
}

// ManageFromPreset returns the preset rules, or ok=false for an unknown name.
func ManageFromPreset(name string) (ManageConfig, bool) {
	p, ok := TrailPresets[name]
	if !ok {
		return ManageConfig{}, false
	}
	var mc ManageConfig
	p.Apply(&mc)
	return mc, true
}
