package indicators

type SwingKind int

const (
	SwingLow SwingKind = iota
	SwingHigh
)

func (k SwingKind) String() string {
	if k == SwingHigh {
		return "high"
	}
	return "low"
}

type Swing struct {
	Index int
	Price float64
	Kind  SwingKind
}

// SwingPoints находит подтверждённые экстремумы: high строго выше left баров
// слева и right баров справа (для low зеркально). Результат упорядочен по индексу.
func SwingPoints(highs, lows []float64, left, right int) []Swing {
	var out []Swing
	n := len(highs)
	if left < 1 || right < 1 || len(lows) != n {
		return out
	}
	for i := left; i < n-right; i++ {
		if isPivot(highs, i, left, right, func(a, b float64) bool { return a > b }) {
			out = append(out, Swing{Index: i, Price: highs[i], Kind: SwingHigh})
		}
		if isPivot(lows, i, left, right, func(a, b float64) bool { return a < b }) {
			out = append(out, Swing{Index: i, Price: lows[i], Kind: SwingLow})
		}
	}
	return out
}

func isPivot(xs []float64, i, left, right int, beats func(a, b float64) bool) bool {
	for j := 1; j <= left; j++ {
		if !beats(xs[i], xs[i-j]) {
			return false
		}
	}
	for j := 1; j <= right; j++ {
		if !beats(xs[i], xs[i+j]) {
			return false
		}
	}
	return true
}

// LastSwings returns up to k most recent swings of one kind, oldest first.
func LastSwings(swings []Swing, kind SwingKind, k int) []Swing {
	out := make([]Swing, 0, k)
	for i := len(swings) - 1; i >= 0 && len(out) < k; i-- {
		if swings[i].Kind == kind {
			out = append(out, swings[i])
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// LastSwingBefore: последний экстремум вида kind с индексом < before.
func LastSwingBefore(swings []Swing, kind SwingKind, before int) (Swing, bool) {
	for i := len(swings) - 1; i >= 0; i-- {
		if swings[i].Kind == kind && swings[i].Index < before {
			return swings[i], true
		}
	}
	return Swing{}, false
}
