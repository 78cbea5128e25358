package ncagg

// timingCertainty mirrors the source tool's hard-coded confidence that real
// instruments sample close to, but not exactly at, their nominal cadence.
// 1.0 would require exact spacing; values below 1 widen the gap/overlap
// tolerance windows in proportion to how loose the cadence actually is.
const timingCertainty = 0.9

// cadenceStep returns the nominal spacing (in index_by units) between
// consecutive records at the given cadence in Hz. Returns 0 if c is 0.
func cadenceStep(c float64) float64 {
	if c == 0 {
		return 0
	}
	return 1.0 / c
}

// minGap is the smallest gap between adjacent records that is NOT
// considered an overlap, given the cadence-scaled tolerance below.
func minGap(c float64) float64 {
	if c == 0 {
		return 0
	}
	return 1.0 / ((2.0 - timingCertainty) * c)
}

// maxGap is the largest gap between adjacent records that is NOT
// considered a data gap requiring a fill segment.
func maxGap(c float64) float64 {
	if c == 0 {
		return 0
	}
	return 1.0 / (timingCertainty * c)
}

// recordsBetween reports how many whole records of cadence c fit strictly
// between a and b (exclusive of endpoints), with correct rounding given
// floating point slack.
func recordsBetween(a, b, c float64) int {
	if c == 0 || b <= a {
		return 0
	}
	n := int(roundHalfAwayFromZero((b - a) * c))
	if n < 0 {
		return 0
	}
	return n - 1
}

func roundHalfAwayFromZero(x float64) float64 {
	if x < 0 {
		return -roundHalfAwayFromZero(-x)
	}
	f := float64(int64(x))
	if x-f >= 0.5 {
		return f + 1
	}
	return f
}

// admissibleLower reports whether v should be kept against a lower bound
// min: v >= min - epsilon, with epsilon a small cadence-scaled slack so a
// record landing essentially on the bound survives floating point noise.
// Mirrors admissibleUpper; the slack must stay tiny; a full cadence step
// here would admit records well below min (source of a historical chop
// bug).
func admissibleLower(v, min, c float64) bool {
	eps := cadenceStep(c) * 1e-6
	if c == 0 {
		eps = 1e-9
	}
	return v >= min-eps
}

// admissibleUpper reports whether v should be kept against an upper bound
// max: v < max + epsilon, with epsilon a small cadence-scaled slack.
func admissibleUpper(v, max, c float64) bool {
	eps := cadenceStep(c) * 1e-6
	if c == 0 {
		eps = 1e-9
	}
	return v < max+eps
}

// isDuplicate reports whether two adjacent non-fill records with projected
// values a (earlier) and b (later) are too close together to both be real:
// b - a < 0.5/c.
func isDuplicate(a, b, c float64) bool {
	if c == 0 {
		return b <= a
	}
	return b-a < 0.5/c
}
