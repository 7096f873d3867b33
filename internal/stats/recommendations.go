package stats

import "fmt"

// Recommendations derives operator guidance from a summary. It is a pure
// function of its input so the same summary always yields the same advice.
func Recommendations(s Summary) []string {
	if s.TotalVerifications == 0 {
		return []string{"no verifications recorded yet"}
	}

	var recs []string

	switch {
	case s.SuccessRate < 80:
		recs = append(recs, fmt.Sprintf(
			"success rate is %.1f%%; review the reference template and band configuration", s.SuccessRate))
	case s.SuccessRate < 95:
		recs = append(recs, fmt.Sprintf(
			"success rate is %.1f%%; monitor for regressions after template changes", s.SuccessRate))
	}

	switch {
	case s.AverageAttempts > 10:
		recs = append(recs, fmt.Sprintf(
			"averaging %.1f attempts per verification; the renderer's base positions are far off and should be recalibrated", s.AverageAttempts))
	case s.AverageAttempts > 5:
		recs = append(recs, fmt.Sprintf(
			"averaging %.1f attempts per verification; consider enabling progressive refinement or tightening base positions", s.AverageAttempts))
	}

	for _, pf := range s.ProblemFields {
		if pf.Count > 0 {
			recs = append(recs, fmt.Sprintf(
				"field %q failed %d time(s); check its band range and font metrics", pf.Name, pf.Count))
		}
	}

	if len(recs) == 0 {
		if s.MostCommonAttempts == 1 {
			recs = append(recs, "alignment is healthy; most certificates verify on the first attempt")
		} else {
			recs = append(recs, "alignment is healthy")
		}
	}

	return recs
}
