package stats

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"certalign/internal/alignment"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := NewTracker(filepath.Join(t.TempDir(), "stats.json"))
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tr
}

func passing(attempts int) Verification {
	return Verification{
		Passed:          true,
		Attempts:        attempts,
		MaxDifferencePx: 0.01,
		TolerancePx:     0.02,
	}
}

func TestTrackerAggregates(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	for _, v := range []Verification{passing(1), passing(1), passing(3)} {
		if err := tr.Record(ctx, v); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := tr.Record(ctx, Verification{Passed: false, Attempts: 5, MaxDifferencePx: 2, TolerancePx: 0.02}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	s, err := tr.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.TotalVerifications != 4 || s.TotalPassed != 3 || s.TotalFailed != 1 {
		t.Errorf("totals = %d/%d/%d, want 4/3/1", s.TotalVerifications, s.TotalPassed, s.TotalFailed)
	}
	if s.SuccessRate != 75 {
		t.Errorf("SuccessRate = %g, want 75", s.SuccessRate)
	}
	if want := 2.5; math.Abs(s.AverageAttempts-want) > 1e-9 {
		t.Errorf("AverageAttempts = %g, want %g", s.AverageAttempts, want)
	}
	if s.MostCommonAttempts != 1 {
		t.Errorf("MostCommonAttempts = %d, want 1", s.MostCommonAttempts)
	}
	if s.AttemptsDistribution[1] != 2 || s.AttemptsDistribution[5] != 1 {
		t.Errorf("distribution = %v", s.AttemptsDistribution)
	}
}

func TestTrackerMostCommonTieBreak(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	// Two each of attempts 2 and 4; the tie goes to the lower count.
	for _, a := range []int{4, 2, 4, 2} {
		if err := tr.Record(ctx, passing(a)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	s, _ := tr.Summary(ctx)
	if s.MostCommonAttempts != 2 {
		t.Errorf("MostCommonAttempts = %d, want 2", s.MostCommonAttempts)
	}
}

func TestTrackerFieldFailures(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	record := func(fields map[string]alignment.FieldDifference) {
		t.Helper()
		err := tr.Record(ctx, Verification{
			Passed:           false,
			Attempts:         2,
			MaxDifferencePx:  3,
			TolerancePx:      0.02,
			FieldDifferences: fields,
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	record(map[string]alignment.FieldDifference{
		"name":      {Name: "name", YDiff: 3},
		"event":     {Name: "event", YDiff: 0.01, XDiff: 0.01},
		"organiser": {Name: "organiser", Err: alignment.ErrNotDetected},
	})
	record(map[string]alignment.FieldDifference{
		"name": {Name: "name", XDiff: 1},
	})

	s, _ := tr.Summary(ctx)
	if len(s.ProblemFields) != 2 {
		t.Fatalf("ProblemFields = %v, want 2 entries", s.ProblemFields)
	}
	if s.ProblemFields[0].Name != "name" || s.ProblemFields[0].Count != 2 {
		t.Errorf("top field = %+v, want name with 2", s.ProblemFields[0])
	}
	if s.ProblemFields[1].Name != "organiser" || s.ProblemFields[1].Count != 1 {
		t.Errorf("second field = %+v, want organiser with 1", s.ProblemFields[1])
	}
}

func TestTrackerSanitizesUnboundedDifference(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stats.json")
	tr, err := NewTracker(path)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	err = tr.Record(ctx, Verification{
		Passed:          false,
		Attempts:        1,
		MaxDifferencePx: math.Inf(1),
		TolerancePx:     0.02,
	})
	if err != nil {
		t.Fatalf("Record with +Inf: %v", err)
	}

	// The record must survive a JSON round trip.
	reopened, err := NewTracker(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	recs := reopened.state.Records
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].MaxDifferencePx != -1 || !recs[0].DetectionFailed {
		t.Errorf("record = %+v, want MaxDifferencePx -1 and DetectionFailed", recs[0])
	}
}

func TestTrackerRecordCap(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	for i := 0; i < maxRecords+10; i++ {
		if err := tr.Record(ctx, passing(1)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	s, _ := tr.Summary(ctx)
	if s.RecordsRetained != maxRecords {
		t.Errorf("RecordsRetained = %d, want %d", s.RecordsRetained, maxRecords)
	}
	// Aggregates keep counting past the cap.
	if s.TotalVerifications != maxRecords+10 {
		t.Errorf("TotalVerifications = %d, want %d", s.TotalVerifications, maxRecords+10)
	}
}

func TestTrackerReset(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	if err := tr.Record(ctx, passing(1)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := tr.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	s, _ := tr.Summary(ctx)
	if s.TotalVerifications != 0 || s.RecordsRetained != 0 {
		t.Errorf("summary after reset = %+v, want empty", s)
	}
}

func TestTrackerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stats.json")

	tr, err := NewTracker(path)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if err := tr.Record(ctx, passing(2)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	reopened, err := NewTracker(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s, _ := reopened.Summary(ctx)
	if s.TotalVerifications != 1 || s.AttemptsDistribution[2] != 1 {
		t.Errorf("summary after reopen = %+v", s)
	}
}
