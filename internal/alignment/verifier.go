// Package alignment implements the iterative alignment verification engine:
// field position extraction, position difference measurement, a bounded
// retry loop with best-attempt tracking, and progressive refinement.
package alignment

import (
	"errors"
	"fmt"
	"math"
	"os"

	"certalign/internal/logging"
	"certalign/internal/raster"
)

// ErrMissingAsset marks a reference or generated image that is absent when
// a verification call starts. It is the only error class that crosses the
// library boundary; everything else is captured in the Outcome.
var ErrMissingAsset = errors.New("missing asset")

// Regenerator produces a fresh candidate image for the next attempt.
// Implementations should be deterministic for unchanged parameters, since
// re-invocation is the engine's only lever for correction. The returned
// path replaces the candidate path for subsequent attempts; an empty path
// means the image was rewritten in place.
type Regenerator interface {
	Regenerate() (string, error)
}

// RegeneratorFunc adapts a plain function to the Regenerator interface.
type RegeneratorFunc func() (string, error)

// Regenerate implements Regenerator.
func (f RegeneratorFunc) Regenerate() (string, error) { return f() }

// AdjustableRegenerator is implemented by renderers that can bias the next
// render with per-field corrections from the progressive refiner.
type AdjustableRegenerator interface {
	Regenerator
	ApplyAdjustments(map[string]Adjustment)
}

// ProgressFunc reports attempt progress. It is fire-and-forget: its return
// is ignored and it must not influence correctness.
type ProgressFunc func(attempt, maxAttempts int)

// Options configures a verification call.
type Options struct {
	// TolerancePx is the maximum allowed center offset, in pixels.
	TolerancePx float64

	// MaxAttempts bounds the retry loop.
	MaxAttempts int

	// Bands define the fields to verify and where to look for them.
	Bands []Band

	// Extractor holds the text detection thresholds.
	Extractor ExtractorOptions

	// Regenerator, when set, is invoked between failed attempts.
	Regenerator Regenerator

	// Progress, when set, is called at the start of every attempt.
	Progress ProgressFunc

	// UseRefiner enables progressive refinement between attempts. It only
	// takes effect when a Regenerator is supplied.
	UseRefiner bool

	Logger *logging.Logger
}

// DefaultOptions returns the standard verification configuration.
func DefaultOptions() Options {
	return Options{
		TolerancePx: 0.02,
		MaxAttempts: 30,
		Bands:       DefaultBands(),
		Extractor:   DefaultExtractorOptions(),
		UseRefiner:  true,
	}
}

// Refiner diagnostic windows used by the verification loop.
const (
	convergeWindow = 3
	abortWindow    = 5
)

// Verify checks that the text fields of the generated certificate land at
// the reference positions within tolerance, retrying with regeneration up
// to MaxAttempts times.
//
// The first attempt within tolerance wins immediately. When attempts are
// exhausted (or the refiner detects oscillation), the outcome carries the
// best-observed attempt with UsedBestAvailable set: delivering the closest
// achievable alignment with an explicit flag beats discarding a near-miss,
// and leaves the deliver-or-block decision to the caller.
//
// A missing reference image is the only condition reported as an error.
func Verify(generatedPath, referencePath string, opts Options) (*Outcome, error) {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if len(opts.Bands) == 0 {
		opts.Bands = DefaultBands()
	}
	if opts.Extractor.DarkPixelThreshold == 0 {
		opts.Extractor = DefaultExtractorOptions()
	}

	if _, err := os.Stat(referencePath); err != nil {
		return nil, fmt.Errorf("reference certificate %s: %w", referencePath, ErrMissingAsset)
	}

	ref, err := raster.Load(referencePath)
	if err != nil {
		return nil, fmt.Errorf("reference certificate: %w", err)
	}

	// The reference is static; extract its positions once per call.
	refPositions := ExtractFieldPositions(ref, opts.Bands, opts.Extractor)
	fields := FieldNames(opts.Bands)

	var refiner *Refiner
	if opts.UseRefiner && opts.Regenerator != nil {
		refiner = NewRefiner(opts.TolerancePx)
	}

	log := opts.Logger
	generated := generatedPath
	var best *AttemptRecord

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if opts.Progress != nil {
			opts.Progress(attempt, opts.MaxAttempts)
		}
		log.Debug("verification attempt", "attempt", attempt, "max", opts.MaxAttempts)

		if _, err := os.Stat(generated); err != nil {
			log.Warn("generated certificate not found", "path", generated)
			if opts.Regenerator != nil && attempt < opts.MaxAttempts {
				generated = regenerate(opts.Regenerator, generated, log)
				continue
			}
			return &Outcome{
				Passed:          false,
				Attempts:        attempt,
				MaxDifferencePx: math.Inf(1),
				Fields:          map[string]FieldDifference{},
				Message:         fmt.Sprintf("certificate file not found after %d attempts", attempt),
				TolerancePx:     opts.TolerancePx,
			}, nil
		}

		diff, attemptErr := measureAttempt(generated, ref, refPositions, fields, opts)
		if attemptErr != nil {
			// Transient failure of a single attempt: count it and move on
			// unless it was the last one.
			log.Error("attempt failed", "attempt", attempt, "error", attemptErr)
			if attempt == opts.MaxAttempts {
				out := bestAvailable(best, attempt, opts.TolerancePx, refiner)
				out.Message = fmt.Sprintf("verification error on attempt %d: %v", attempt, attemptErr)
				return out, nil
			}
			continue
		}

		rec := &AttemptRecord{
			AttemptNumber:   attempt,
			MaxDifferencePx: diff.MaxDifferencePx,
			Fields:          diff.Fields,
			ImagePath:       generated,
		}
		// Strict less-than keeps the earliest attempt on ties.
		if best == nil || rec.MaxDifferencePx < best.MaxDifferencePx {
			best = rec
		}

		log.Info("attempt measured",
			"attempt", attempt,
			"max_difference_px", fmt.Sprintf("%.4f", diff.MaxDifferencePx),
			"tolerance_px", opts.TolerancePx)

		if diff.MaxDifferencePx <= opts.TolerancePx {
			out := &Outcome{
				Passed:          true,
				Attempts:        attempt,
				MaxDifferencePx: diff.MaxDifferencePx,
				Fields:          diff.Fields,
				Message: fmt.Sprintf("PASSED: alignment verified on attempt %d/%d, max difference %.4f px (tolerance %g px)",
					attempt, opts.MaxAttempts, diff.MaxDifferencePx, opts.TolerancePx),
				TolerancePx: opts.TolerancePx,
			}
			if refiner != nil {
				s := refiner.Stats()
				out.RefinerStats = &s
			}
			return out, nil
		}

		if attempt < opts.MaxAttempts && opts.Regenerator != nil {
			if refiner != nil {
				adjustments := refiner.CalculateAdjustment(diff.Fields, attempt)
				if adjustable, ok := opts.Regenerator.(AdjustableRegenerator); ok {
					adjustable.ApplyAdjustments(adjustments)
				}
				if refiner.ShouldAbort(abortWindow) {
					log.Warn("refinement oscillating, stopping early", "attempt", attempt)
					out := bestAvailable(best, attempt, opts.TolerancePx, refiner)
					out.Message = fmt.Sprintf("refinement not converging after %d attempts, using best available", attempt)
					return out, nil
				}
			}
			generated = regenerate(opts.Regenerator, generated, log)
		}
	}

	out := bestAvailable(best, opts.MaxAttempts, opts.TolerancePx, refiner)
	if best != nil {
		out.Message = fmt.Sprintf("FAILED: alignment verification failed after %d attempts, best max difference %.4f px (tolerance %g px)",
			opts.MaxAttempts, best.MaxDifferencePx, opts.TolerancePx)
	} else {
		out.Message = "verification failed: no attempt could be measured"
	}
	return out, nil
}

// measureAttempt loads the candidate image and compares its field positions
// against the reference. A dimension mismatch is folded into the normal
// fail/retry flow as an unbounded difference rather than an error.
func measureAttempt(generatedPath string, ref *raster.Raster, refPositions map[string]FieldPosition, fields []string, opts Options) (DiffResult, error) {
	gen, err := raster.Load(generatedPath)
	if err != nil {
		return DiffResult{}, err
	}

	if !gen.SameSize(ref) {
		opts.Logger.Warn("dimension mismatch",
			"generated", fmt.Sprintf("%dx%d", gen.Width, gen.Height),
			"reference", fmt.Sprintf("%dx%d", ref.Width, ref.Height))
		return DiffResult{
			Fields:          map[string]FieldDifference{},
			MaxDifferencePx: math.Inf(1),
			MissingFields:   fields,
		}, nil
	}

	genPositions := ExtractFieldPositions(gen, opts.Bands, opts.Extractor)
	return CalculatePositionDifference(genPositions, refPositions, fields), nil
}

// regenerate invokes the regenerator, logging failures as transient.
// It returns the candidate path for the next attempt.
func regenerate(r Regenerator, current string, log *logging.Logger) string {
	path, err := r.Regenerate()
	if err != nil {
		log.Error("regeneration failed", "error", err)
		return current
	}
	if path == "" {
		return current
	}
	return path
}

// bestAvailable builds an exhaustion outcome that mirrors the best-observed
// attempt, when one exists.
func bestAvailable(best *AttemptRecord, attempts int, tolerancePx float64, refiner *Refiner) *Outcome {
	out := &Outcome{
		Passed:          false,
		Attempts:        attempts,
		MaxDifferencePx: math.Inf(1),
		Fields:          map[string]FieldDifference{},
		TolerancePx:     tolerancePx,
	}
	if best != nil {
		out.MaxDifferencePx = best.MaxDifferencePx
		out.Fields = best.Fields
		out.BestAttempt = best
		out.UsedBestAvailable = true
	}
	if refiner != nil {
		s := refiner.Stats()
		out.RefinerStats = &s
	}
	return out
}
