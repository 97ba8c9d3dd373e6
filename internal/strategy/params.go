package strategy

import (
	"math"
	"sort"
)

// Params: пороги и периоды стратегии. Неизвестные ключи игнорируются.
type Params map[string]float64

// common periods, shared by every chain
var baseDefaults = Params{
	"fast":        50,
	"slow":        200,
	"trend":       100,
	"atr_period":  14,
	"rsi_period":  14,
	"adx_period":  14,
	"period":      20,
	"pivot_left":  3,
	"pivot_right": 3,
}

// With returns a copy of p with every key of defaults that p lacks.
func (p Params) With(defaults Params) Params {
	out := make(Params, len(p)+len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p Params) Get(key string) float64 {
	return p[key]
}

// Int rounds the value; periods are configured as floats in yaml.
func (p Params) Int(key string) int {
	return int(math.Round(p[key]))
}

func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
