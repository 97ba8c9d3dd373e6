package models

import (
	"strings"
	"time"
)

// Candle: закрытый или формирующийся бар, Time = время открытия (UTC).
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// CloseTime is the moment the bar stops forming for the given timeframe.
func (c Candle) CloseTime(tf Timeframe) time.Time {
	return c.Time.Add(tf.Duration())
}

type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

// ParseTimeframe accepts MT5 names and the lowercase "15m"/"1h" forms.
func ParseTimeframe(raw string) Timeframe {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case "1M", "M1":
		return M1
	case "5M", "M5":
		return M5
	case "15M", "M15":
		return M15
	case "30M", "M30":
		return M30
	case "60M", "1H", "H1":
		return H1
	case "4H", "H4":
		return H4
	case "1D", "D1":
		return D1
	}
	return Timeframe(s)
}

func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case M1:
		return time.Minute
	case M5:
		return 5 * time.Minute
	case M15:
		return 15 * time.Minute
	case M30:
		return 30 * time.Minute
	case H1:
		return time.Hour
	case H4:
		return 4 * time.Hour
	case D1:
		return 24 * time.Hour
	default:
		return 0
	}
}

func (tf Timeframe) Valid() bool { return tf.Duration() > 0 }
