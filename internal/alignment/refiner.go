package alignment

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Adjustment is a positional correction for one field, in pixels.
// Positive values move the field down/right toward the reference.
type Adjustment struct {
	YAdjust float64 `json:"y_adjust"`
	XAdjust float64 `json:"x_adjust"`
}

// RefinerStats summarizes a refiner's history.
type RefinerStats struct {
	TotalAttempts     int     `json:"total_attempts"`
	Converging        bool    `json:"converging"`
	AverageAdjustment float64 `json:"average_adjustment"`
	TolerancePx       float64 `json:"tolerance_px"`
}

// Refiner computes damped per-field corrections from measured differences
// and tracks their magnitudes to detect convergence or oscillation.
// It is not safe for concurrent use; each verification call owns its own.
type Refiner struct {
	tolerancePx float64
	history     []refinementStep
}

type refinementStep struct {
	attempt     int
	adjustments map[string]Adjustment
	stepFactor  float64
}

// maxRefinerHistory bounds the retained adjustment history. The diagnostics
// only look at small trailing windows, so old entries carry no information.
const maxRefinerHistory = 50

// NewRefiner creates a refiner targeting the given tolerance.
func NewRefiner(tolerancePx float64) *Refiner {
	return &Refiner{tolerancePx: tolerancePx}
}

// StepFactor returns the damped correction factor for an attempt number.
// Early attempts take near-full steps; the factor decays toward a 0.5 floor
// so late corrections cannot overshoot into oscillation.
func StepFactor(attempt int) float64 {
	return math.Max(0.5, 1.0/(1.0+float64(attempt)*0.1))
}

// CalculateAdjustment computes the correction vector for each field from
// the measured differences. Fields with a detection error contribute a zero
// adjustment: there is nothing to correct toward.
func (r *Refiner) CalculateAdjustment(fieldDifferences map[string]FieldDifference, attempt int) map[string]Adjustment {
	step := StepFactor(attempt)
	adjustments := make(map[string]Adjustment, len(fieldDifferences))

	for name, fd := range fieldDifferences {
		if fd.Err != "" {
			adjustments[name] = Adjustment{}
			continue
		}
		adjustments[name] = Adjustment{
			YAdjust: (fd.YCenterRef - fd.YCenterGen) * step,
			XAdjust: (fd.XCenterRef - fd.XCenterGen) * step,
		}
	}

	r.history = append(r.history, refinementStep{
		attempt:     attempt,
		adjustments: adjustments,
		stepFactor:  step,
	})
	if len(r.history) > maxRefinerHistory {
		r.history = r.history[len(r.history)-maxRefinerHistory:]
	}

	return adjustments
}

// meanMagnitude is the mean per-field L1 adjustment size of one step.
func (s refinementStep) meanMagnitude() float64 {
	if len(s.adjustments) == 0 {
		return 0
	}
	mags := make([]float64, 0, len(s.adjustments))
	for _, adj := range s.adjustments {
		mags = append(mags, math.Abs(adj.YAdjust)+math.Abs(adj.XAdjust))
	}
	return stat.Mean(mags, nil)
}

// totalMagnitude is the summed L1 adjustment size of one step.
func (s refinementStep) totalMagnitude() float64 {
	var total float64
	for _, adj := range s.adjustments {
		total += math.Abs(adj.YAdjust) + math.Abs(adj.XAdjust)
	}
	return total
}

// IsConverging reports whether adjustments are shrinking over the most
// recent window. This is a monotonic-decrease heuristic, not a proof:
// with fewer than window entries it optimistically returns true.
func (r *Refiner) IsConverging(window int) bool {
	if len(r.history) < window {
		return true
	}
	recent := r.history[len(r.history)-window:]
	return recent[len(recent)-1].meanMagnitude() < recent[0].meanMagnitude()
}

// ShouldAbort reports whether the adjustment magnitude grew by more than
// 1.5x across the trailing window, the signature of oscillation. Callers
// should stop retrying and return their best-available result.
func (r *Refiner) ShouldAbort(window int) bool {
	if len(r.history) < window {
		return false
	}
	recent := r.history[len(r.history)-window:]
	first := recent[0].totalMagnitude()
	last := recent[len(recent)-1].totalMagnitude()
	return last > first*1.5
}

// Stats returns a summary of the refiner's history.
func (r *Refiner) Stats() RefinerStats {
	s := RefinerStats{
		TotalAttempts: len(r.history),
		TolerancePx:   r.tolerancePx,
	}
	if len(r.history) == 0 {
		return s
	}

	mags := make([]float64, 0, len(r.history))
	for _, step := range r.history {
		for _, adj := range step.adjustments {
			mags = append(mags, math.Abs(adj.YAdjust)+math.Abs(adj.XAdjust))
		}
	}
	if len(mags) > 0 {
		s.AverageAdjustment = stat.Mean(mags, nil)
	}
	s.Converging = r.IsConverging(convergeWindow)
	return s
}
