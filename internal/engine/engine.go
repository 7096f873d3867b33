// Package engine orchestrates certificate verification: cache lookup and
// confirmation, the full retry loop, and stats recording.
package engine

import (
	"context"
	"fmt"

	"certalign/internal/alignment"
	"certalign/internal/cache"
	"certalign/internal/logging"
	"certalign/internal/raster"
	"certalign/internal/stats"
)

// Engine is a configured verification pipeline. Cache and Stats are
// optional; a nil backend disables that concern.
type Engine struct {
	Cache   cache.Store
	Stats   stats.Recorder
	Options alignment.Options
	Logger  *logging.Logger
}

// New builds an engine around the given verification options.
func New(opts alignment.Options, store cache.Store, recorder stats.Recorder) *Engine {
	return &Engine{
		Cache:   store,
		Stats:   recorder,
		Options: opts,
		Logger:  opts.Logger,
	}
}

// VerifyCertificate verifies one certificate against the reference.
//
// When the certificate's text content has a cache entry, a single
// extraction confirms the cached positions before they are trusted; a
// failed confirmation falls through to the full verification loop. The
// fields map carries the certificate's text content and may be nil, which
// disables caching for the call.
func (e *Engine) VerifyCertificate(ctx context.Context, generatedPath, referencePath string, fields map[string]string) (*alignment.Outcome, error) {
	if outcome := e.tryCache(ctx, generatedPath, fields); outcome != nil {
		e.record(ctx, outcome, fields)
		return outcome, nil
	}

	outcome, err := alignment.Verify(generatedPath, referencePath, e.Options)
	if err != nil {
		return nil, err
	}

	if outcome.Passed {
		e.storeCache(ctx, outcome, fields)
	}
	e.record(ctx, outcome, fields)
	return outcome, nil
}

// tryCache attempts the cache fast path. It returns a passing outcome only
// when the cached positions are confirmed by a fresh extraction of the
// current image; any miss, error, or failed confirmation returns nil.
func (e *Engine) tryCache(ctx context.Context, generatedPath string, fields map[string]string) *alignment.Outcome {
	if e.Cache == nil || len(fields) == 0 {
		return nil
	}

	key := cache.ContentKey(fields)
	payload, err := e.Cache.Get(ctx, key)
	if err != nil {
		e.Logger.Warn("cache lookup failed", "error", err)
		return nil
	}
	if payload == nil {
		return nil
	}

	img, err := raster.Load(generatedPath)
	if err != nil {
		e.Logger.Warn("cache confirmation load failed", "error", err)
		return nil
	}

	current := alignment.ExtractFieldPositions(img, e.Options.Bands, e.Options.Extractor)
	diff := alignment.CalculatePositionDifference(current, payload.Fields, alignment.FieldNames(e.Options.Bands))
	if diff.MaxDifferencePx > e.Options.TolerancePx {
		e.Logger.Info("cached positions did not confirm, running full verification",
			"max_difference_px", fmt.Sprintf("%.4f", diff.MaxDifferencePx))
		return nil
	}

	e.Logger.Info("cache hit confirmed", "key", key[:12])
	return &alignment.Outcome{
		Passed:          true,
		Attempts:        1,
		MaxDifferencePx: diff.MaxDifferencePx,
		Fields:          diff.Fields,
		Message: fmt.Sprintf("PASSED: cached positions confirmed, max difference %.4f px (tolerance %g px)",
			diff.MaxDifferencePx, e.Options.TolerancePx),
		TolerancePx: e.Options.TolerancePx,
		UsedCache:   true,
	}
}

// storeCache records a passing verification's positions for future runs.
func (e *Engine) storeCache(ctx context.Context, outcome *alignment.Outcome, fields map[string]string) {
	if e.Cache == nil || len(fields) == 0 {
		return
	}

	positions := make(map[string]alignment.FieldPosition, len(outcome.Fields))
	for name, fd := range outcome.Fields {
		if fd.Err != "" {
			continue
		}
		positions[name] = alignment.FieldPosition{
			Name:    name,
			YCenter: fd.YCenterGen,
			XCenter: fd.XCenterGen,
		}
	}

	payload := cache.Payload{
		MaxDifferencePx: outcome.MaxDifferencePx,
		Attempts:        outcome.Attempts,
		Fields:          positions,
	}
	if err := e.Cache.Set(ctx, cache.ContentKey(fields), payload); err != nil {
		e.Logger.Warn("cache store failed", "error", err)
	}
}

// record forwards the outcome to the stats backend. Stats failures are
// logged, never surfaced; bookkeeping must not fail a verification.
func (e *Engine) record(ctx context.Context, outcome *alignment.Outcome, fields map[string]string) {
	if e.Stats == nil {
		return
	}

	var textLengths map[string]int
	if len(fields) > 0 {
		textLengths = make(map[string]int, len(fields))
		for name, value := range fields {
			textLengths[name] = len(value)
		}
	}

	err := e.Stats.Record(ctx, stats.Verification{
		Passed:           outcome.Passed,
		Attempts:         outcome.Attempts,
		MaxDifferencePx:  outcome.MaxDifferencePx,
		FieldDifferences: outcome.Fields,
		TolerancePx:      outcome.TolerancePx,
		TextLengths:      textLengths,
	})
	if err != nil {
		e.Logger.Warn("stats record failed", "error", err)
	}
}
