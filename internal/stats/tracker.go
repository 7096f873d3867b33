// Package stats aggregates verification outcomes over time so operators
// can spot drifting templates and chronic problem fields.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"certalign/internal/alignment"
)

// maxRecords bounds the retained per-run history. Aggregate counters are
// incremental and unaffected by the cap.
const maxRecords = 100

// Verification is one completed verification, as reported by the engine.
type Verification struct {
	Passed           bool
	Attempts         int
	MaxDifferencePx  float64
	FieldDifferences map[string]alignment.FieldDifference
	TolerancePx      float64
	TextLengths      map[string]int
}

// Record is the persisted form of a verification. Unbounded differences
// (detection failures) are stored as -1 with DetectionFailed set, since
// JSON has no representation for +Inf.
type Record struct {
	RunID           string         `json:"run_id"`
	Timestamp       time.Time      `json:"timestamp"`
	Passed          bool           `json:"passed"`
	Attempts        int            `json:"attempts"`
	MaxDifferencePx float64        `json:"max_difference_px"`
	DetectionFailed bool           `json:"detection_failed"`
	TolerancePx     float64        `json:"tolerance_px"`
	FieldCount      int            `json:"field_count"`
	TextLengths     map[string]int `json:"text_lengths,omitempty"`
}

// FieldFailure pairs a field name with its failure count.
type FieldFailure struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary is an aggregate view over all recorded verifications.
type Summary struct {
	TotalVerifications   int            `json:"total_verifications"`
	TotalPassed          int            `json:"total_passed"`
	TotalFailed          int            `json:"total_failed"`
	SuccessRate          float64        `json:"success_rate"`
	AverageAttempts      float64        `json:"average_attempts"`
	MostCommonAttempts   int            `json:"most_common_attempts"`
	ProblemFields        []FieldFailure `json:"problem_fields"`
	AttemptsDistribution map[int]int    `json:"attempts_distribution"`
	RecordsRetained      int            `json:"records_retained"`
}

// Recorder receives completed verifications.
type Recorder interface {
	Record(ctx context.Context, v Verification) error
}

// Source is a stats backend: it records verifications and answers
// aggregate queries.
type Source interface {
	Recorder
	Summary(ctx context.Context) (Summary, error)
	Reset(ctx context.Context) error
}

// trackerState is the JSON document persisted by Tracker.
type trackerState struct {
	TotalVerifications   int            `json:"total_verifications"`
	TotalPassed          int            `json:"total_passed"`
	TotalFailed          int            `json:"total_failed"`
	AverageAttempts      float64        `json:"average_attempts"`
	FieldFailures        map[string]int `json:"field_failures"`
	AttemptsDistribution map[int]int    `json:"attempts_distribution"`
	Records              []Record       `json:"records"`
}

// Tracker is a JSON-file-backed Source. Aggregates are updated
// incrementally so they survive the record-history cap.
type Tracker struct {
	mu    sync.Mutex
	path  string
	state trackerState
}

// NewTracker opens (or creates) a tracker backed by the given file.
func NewTracker(path string) (*Tracker, error) {
	t := &Tracker{path: path}
	t.state = emptyState()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("failed to read stats file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &t.state); err != nil {
		return nil, fmt.Errorf("failed to parse stats file %s: %w", path, err)
	}
	if t.state.FieldFailures == nil {
		t.state.FieldFailures = make(map[string]int)
	}
	if t.state.AttemptsDistribution == nil {
		t.state.AttemptsDistribution = make(map[int]int)
	}

	return t, nil
}

func emptyState() trackerState {
	return trackerState{
		FieldFailures:        make(map[string]int),
		AttemptsDistribution: make(map[int]int),
	}
}

// Record folds one verification into the aggregates and appends it to the
// bounded history.
func (t *Tracker) Record(_ context.Context, v Verification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.TotalVerifications++
	if v.Passed {
		t.state.TotalPassed++
	} else {
		t.state.TotalFailed++
	}

	// Incremental mean keeps the average exact without replaying history.
	n := float64(t.state.TotalVerifications)
	t.state.AverageAttempts += (float64(v.Attempts) - t.state.AverageAttempts) / n
	t.state.AttemptsDistribution[v.Attempts]++

	for name, fd := range v.FieldDifferences {
		if fieldFailed(fd, v.TolerancePx) {
			t.state.FieldFailures[name]++
		}
	}

	t.state.Records = append(t.state.Records, newRecord(v))
	if len(t.state.Records) > maxRecords {
		t.state.Records = t.state.Records[len(t.state.Records)-maxRecords:]
	}

	return t.save()
}

// fieldFailed reports whether a field contributed to a misalignment:
// either it could not be detected, or one of its offsets exceeds tolerance.
func fieldFailed(fd alignment.FieldDifference, tolerancePx float64) bool {
	return fd.Err != "" || fd.YDiff > tolerancePx || fd.XDiff > tolerancePx
}

// newRecord converts a verification to its persisted form, sanitizing the
// unbounded-difference case.
func newRecord(v Verification) Record {
	rec := Record{
		RunID:           uuid.NewString(),
		Timestamp:       time.Now(),
		Passed:          v.Passed,
		Attempts:        v.Attempts,
		MaxDifferencePx: v.MaxDifferencePx,
		TolerancePx:     v.TolerancePx,
		FieldCount:      len(v.FieldDifferences),
		TextLengths:     v.TextLengths,
	}
	if isUnbounded(v.MaxDifferencePx) {
		rec.MaxDifferencePx = -1
		rec.DetectionFailed = true
	}
	return rec
}

func isUnbounded(v float64) bool {
	return v != v || v > 1e300
}

// Summary computes the aggregate view.
func (t *Tracker) Summary(_ context.Context) (Summary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return summarize(t.state), nil
}

// Reset discards all aggregates and history.
func (t *Tracker) Reset(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = emptyState()
	return t.save()
}

func summarize(s trackerState) Summary {
	sum := Summary{
		TotalVerifications:   s.TotalVerifications,
		TotalPassed:          s.TotalPassed,
		TotalFailed:          s.TotalFailed,
		AttemptsDistribution: make(map[int]int, len(s.AttemptsDistribution)),
		RecordsRetained:      len(s.Records),
	}
	for k, v := range s.AttemptsDistribution {
		sum.AttemptsDistribution[k] = v
	}

	if s.TotalVerifications > 0 {
		sum.SuccessRate = float64(s.TotalPassed) / float64(s.TotalVerifications) * 100
	}

	// Weighted mean over the distribution equals the incremental average;
	// the distribution is authoritative since it is never truncated.
	if len(s.AttemptsDistribution) > 0 {
		attempts := make([]float64, 0, len(s.AttemptsDistribution))
		weights := make([]float64, 0, len(s.AttemptsDistribution))
		for a, count := range s.AttemptsDistribution {
			attempts = append(attempts, float64(a))
			weights = append(weights, float64(count))
		}
		sum.AverageAttempts = stat.Mean(attempts, weights)
		sum.MostCommonAttempts = mostCommon(s.AttemptsDistribution)
	}

	sum.ProblemFields = topFailures(s.FieldFailures, 3)
	return sum
}

// mostCommon returns the attempt count with the highest frequency,
// preferring the lowest count on ties.
func mostCommon(dist map[int]int) int {
	best, bestCount := 0, -1
	for attempts, count := range dist {
		if count > bestCount || (count == bestCount && attempts < best) {
			best, bestCount = attempts, count
		}
	}
	return best
}

// topFailures returns the n most-failing fields, ordered by count
// descending, then name ascending.
func topFailures(failures map[string]int, n int) []FieldFailure {
	out := make([]FieldFailure, 0, len(failures))
	for name, count := range failures {
		out = append(out, FieldFailure{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// save writes the state through a temp file and rename. Caller holds
// the lock.
func (t *Tracker) save() error {
	data, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		return err
	}

	tmp := t.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, t.path)
}
