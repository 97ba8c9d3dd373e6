package indicators

import "math"

// Trendline: прямая МНК через точки (индекс бара, цена).
type Trendline struct {
	Slope     float64
	Intercept float64
	R2        float64
	From, To  int
}

func (t Trendline) PriceAt(i int) float64 {
	return t.Intercept + t.Slope*float64(i)
}

// FitTrendline fits price = a + b*index by ordinary least squares.
func FitTrendline(points []Swing) (Trendline, bool) {
	n := float64(len(points))
	if len(points) < 2 {
		return Trendline{}, false
	}
	var sx, sy, sxx, sxy float64
	for _, p := range points {
		x, y := float64(p.Index), p.Price
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return Trendline{}, false
	}
	slope := (n*sxy - sx*sy) / den
	icpt := (sy - slope*sx) / n

	mean := sy / n
	var ssTot, ssRes float64
	for _, p := range points {
		fit := icpt + slope*float64(p.Index)
		ssRes += (p.Price - fit) * (p.Price - fit)
		ssTot += (p.Price - mean) * (p.Price - mean)
	}
	r2 := 1.0
	if ssTot > 0 {
		r2 = math.Max(0, 1-ssRes/ssTot)
	}
	return Trendline{
		Slope:     slope,
		Intercept: icpt,
		R2:        r2,
		From:      points[0].Index,
		To:        points[len(points)-1].Index,
	}, true
}
