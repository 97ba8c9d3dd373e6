package indicators

import (
	"math"

	"fxbot/internal/models"
)

func Body(c models.Candle) float64  { return math.Abs(c.Close - c.Open) }
func Range(c models.Candle) float64 { return c.High - c.Low }
func IsBull(c models.Candle) bool   { return c.Close > c.Open }
func IsBear(c models.Candle) bool   { return c.Close < c.Open }

func UpperWick(c models.Candle) float64 { return c.High - math.Max(c.Open, c.Close) }
func LowerWick(c models.Candle) float64 { return math.Min(c.Open, c.Close) - c.Low }

// BullishEngulfing: медвежья свеча, затем бычья, тело которой перекрывает предыдущее.
func BullishEngulfing(prev, cur models.Candle) bool {
	return IsBear(prev) && IsBull(cur) &&
		cur.Open <= prev.Close && cur.Close >= prev.Open &&
		Body(cur) > Body(prev)
}

func BearishEngulfing(prev, cur models.Candle) bool {
	return IsBull(prev) && IsBear(cur) &&
		cur.Open >= prev.Close && cur.Close <= prev.Open &&
		Body(cur) > Body(prev)
}

// Hammer: бычий пин-бар, нижняя тень >= 2 тел, верхняя не больше тела.
func Hammer(c models.Candle) bool {
	body := Body(c)
	if Range(c) <= 0 {
		return false
	}
	if body == 0 {
		body = Range(c) * 0.05
	}
	return LowerWick(c) >= 2*body && UpperWick(c) <= body
}

func ShootingStar(c models.Candle) bool {
	body := Body(c)
	if Range(c) <= 0 {
		return false
	}
	if body == 0 {
		body = Range(c) * 0.05
	}
	return UpperWick(c) >= 2*body && LowerWick(c) <= body
}

func InsideBar(prev, cur models.Candle) bool {
	return cur.High < prev.High && cur.Low > prev.Low
}

// TriggerCandle reports a reversal candle in the direction of side.
func TriggerCandle(prev, cur models.Candle, side models.Side) (string, bool) {
	switch side {
	case models.SideBuy:
		if BullishEngulfing(prev, cur) {
			return "bullish_engulfing", true
		}
		if Hammer(cur) {
			return "hammer", true
		}
	case models.SideSell:
		if BearishEngulfing(prev, cur) {
			return "bearish_engulfing", true
		}
		if ShootingStar(cur) {
			return "shooting_star", true
		}
	}
	return "", false
}
