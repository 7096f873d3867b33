package alignment

import (
	"math"
	"testing"
)

func TestStepFactorDecaysToFloor(t *testing.T) {
	if got := StepFactor(1); math.Abs(got-1.0/1.1) > 1e-12 {
		t.Errorf("StepFactor(1) = %g, want %g", got, 1.0/1.1)
	}
	if StepFactor(20) >= StepFactor(1) {
		t.Error("step factor should decay with attempt number")
	}
	if got := StepFactor(100); got != 0.5 {
		t.Errorf("StepFactor(100) = %g, want floor 0.5", got)
	}
}

func TestCalculateAdjustmentDirection(t *testing.T) {
	r := NewRefiner(0.02)
	diffs := map[string]FieldDifference{
		// Generated sits above and left of the reference.
		"name": {Name: "name", YCenterGen: 100, YCenterRef: 110, XCenterGen: 200, XCenterRef: 195},
	}

	adj := r.CalculateAdjustment(diffs, 1)

	step := StepFactor(1)
	if got, want := adj["name"].YAdjust, 10*step; math.Abs(got-want) > 1e-12 {
		t.Errorf("YAdjust = %g, want %g", got, want)
	}
	if got, want := adj["name"].XAdjust, -5*step; math.Abs(got-want) > 1e-12 {
		t.Errorf("XAdjust = %g, want %g", got, want)
	}
}

func TestCalculateAdjustmentErrorFieldIsZero(t *testing.T) {
	r := NewRefiner(0.02)
	diffs := map[string]FieldDifference{
		"name":  {Name: "name", YCenterGen: 100, YCenterRef: 104},
		"event": {Name: "event", Err: ErrNotDetected},
	}

	adj := r.CalculateAdjustment(diffs, 1)

	if adj["event"] != (Adjustment{}) {
		t.Errorf("undetected field adjustment = %+v, want zero", adj["event"])
	}
	if adj["name"].YAdjust == 0 {
		t.Error("detected field should get a nonzero adjustment")
	}
}

// feed pushes one synthetic step of the given uniform offset into the
// refiner's history.
func feed(r *Refiner, attempt int, offset float64) {
	r.CalculateAdjustment(map[string]FieldDifference{
		"name": {Name: "name", YCenterRef: offset, YCenterGen: 0},
	}, attempt)
}

func TestIsConverging(t *testing.T) {
	r := NewRefiner(0.02)
	feed(r, 1, 10)
	feed(r, 2, 5)
	feed(r, 3, 2)
	if !r.IsConverging(3) {
		t.Error("shrinking adjustments should report converging")
	}

	r = NewRefiner(0.02)
	feed(r, 1, 2)
	feed(r, 2, 5)
	feed(r, 3, 10)
	if r.IsConverging(3) {
		t.Error("growing adjustments should not report converging")
	}
}

func TestIsConvergingShortHistory(t *testing.T) {
	r := NewRefiner(0.02)
	feed(r, 1, 10)
	if !r.IsConverging(3) {
		t.Error("short history should be optimistic")
	}
}

func TestShouldAbortOnOscillation(t *testing.T) {
	r := NewRefiner(0.02)
	feed(r, 1, 2)
	feed(r, 2, 4)
	feed(r, 3, 2)
	feed(r, 4, 6)
	feed(r, 5, 12)
	if !r.ShouldAbort(5) {
		t.Error("sharply growing adjustments should trigger abort")
	}

	r = NewRefiner(0.02)
	feed(r, 1, 10)
	feed(r, 2, 8)
	feed(r, 3, 6)
	feed(r, 4, 4)
	feed(r, 5, 2)
	if r.ShouldAbort(5) {
		t.Error("shrinking adjustments must not trigger abort")
	}
}

func TestShouldAbortShortHistory(t *testing.T) {
	r := NewRefiner(0.02)
	feed(r, 1, 2)
	feed(r, 2, 100)
	if r.ShouldAbort(5) {
		t.Error("short history must not trigger abort")
	}
}

func TestRefinerStats(t *testing.T) {
	r := NewRefiner(0.02)
	feed(r, 1, 10)
	feed(r, 2, 5)
	feed(r, 3, 2)

	s := r.Stats()
	if s.TotalAttempts != 3 {
		t.Errorf("TotalAttempts = %d, want 3", s.TotalAttempts)
	}
	if !s.Converging {
		t.Error("stats should report converging for shrinking history")
	}
	if s.AverageAdjustment <= 0 {
		t.Errorf("AverageAdjustment = %g, want positive", s.AverageAdjustment)
	}
	if s.TolerancePx != 0.02 {
		t.Errorf("TolerancePx = %g, want 0.02", s.TolerancePx)
	}
}

func TestRefinerHistoryCap(t *testing.T) {
	r := NewRefiner(0.02)
	for i := 1; i <= maxRefinerHistory+20; i++ {
		feed(r, i, 1)
	}
	if got := r.Stats().TotalAttempts; got != maxRefinerHistory {
		t.Errorf("history length = %d, want cap %d", got, maxRefinerHistory)
	}
}
