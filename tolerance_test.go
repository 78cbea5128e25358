package ncagg

import "testing"

func TestCadenceStep(t *testing.T) {
	if got := cadenceStep(0); got != 0 {
		t.Errorf("cadenceStep(0) = %v, want 0", got)
	}
	if got := cadenceStep(2); got != 0.5 {
		t.Errorf("cadenceStep(2) = %v, want 0.5", got)
	}
}

func TestMinMaxGap(t *testing.T) {
	c := 1.0 // 1 Hz
	if min := minGap(c); min <= 0 {
		t.Errorf("minGap(%v) = %v, want > 0", c, min)
	}
	if max := maxGap(c); max <= cadenceStep(c) {
		t.Errorf("maxGap(%v) = %v, want > cadenceStep", c, max)
	}
	if minGap(c) >= maxGap(c) {
		t.Errorf("minGap %v should be < maxGap %v", minGap(c), maxGap(c))
	}
}

func TestRecordsBetween(t *testing.T) {
	cases := []struct {
		a, b, c float64
		want    int
	}{
		{0, 5, 1, 4},  // 1,2,3,4 fit strictly between 0 and 5 at 1Hz
		{0, 1, 1, 0},  // adjacent records, nothing between
		{0, 0, 1, 0},  // degenerate
		{5, 0, 1, 0},  // b <= a
		{0, 10, 0, 0}, // no cadence, no fill
	}
	for _, c := range cases {
		if got := recordsBetween(c.a, c.b, c.c); got != c.want {
			t.Errorf("recordsBetween(%v, %v, %v) = %d, want %d", c.a, c.b, c.c, got, c.want)
		}
	}
}

func TestIsDuplicate(t *testing.T) {
	c := 1.0
	if !isDuplicate(0, 0.1, c) {
		t.Error("records 0.1 apart at 1Hz should be flagged duplicate")
	}
	if isDuplicate(0, 2, c) {
		t.Error("records 2 apart at 1Hz should not be flagged duplicate")
	}
}

func TestAdmissibleBounds(t *testing.T) {
	c := 1.0
	if !admissibleLower(1.0-1e-9, 1.0, c) {
		t.Error("a value essentially on the lower bound should be admissible")
	}
	if admissibleLower(0.99, 1.0, c) {
		t.Error("a value meaningfully below the lower bound should not be admissible")
	}
	if admissibleLower(-5, 1.0, c) {
		t.Error("a value far below the lower bound should not be admissible")
	}
	if !admissibleUpper(1.0, 1.0, c) {
		t.Error("a value at the exact upper bound should be admissible")
	}
	if admissibleUpper(5.0, 1.0, c) {
		t.Error("a value far past the upper bound should not be admissible")
	}
}
