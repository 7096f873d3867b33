package alignment

// FieldPosition describes where a rendered text field landed in an image.
// Centers are kept as real numbers to support sub-pixel comparison.
type FieldPosition struct {
	Name        string  `json:"name"`
	YCenter     float64 `json:"y_center"`
	XCenter     float64 `json:"x_center"`
	YStart      int     `json:"y_start"`
	YEnd        int     `json:"y_end"`
	NormalizedY float64 `json:"normalized_y"`
	NormalizedX float64 `json:"normalized_x"`
}

// ErrNotDetected is the per-field error marker used when a field could not
// be located on one side of a comparison.
const ErrNotDetected = "not_detected"

// FieldDifference holds the measured center offsets for one field, or a
// detection error when either side is missing the field.
type FieldDifference struct {
	Name       string  `json:"name"`
	YDiff      float64 `json:"y_diff"`
	XDiff      float64 `json:"x_diff"`
	YCenterGen float64 `json:"y_center_gen"`
	YCenterRef float64 `json:"y_center_ref"`
	XCenterGen float64 `json:"x_center_gen"`
	XCenterRef float64 `json:"x_center_ref"`

	// Err is ErrNotDetected when either side lacks the field. The two
	// Detected* flags identify which side failed.
	Err                 string `json:"error,omitempty"`
	DetectedInGenerated bool   `json:"detected_in_generated"`
	DetectedInReference bool   `json:"detected_in_reference"`
}

// DiffResult is the outcome of comparing two position sets.
// MaxDifferencePx is +Inf whenever any required field is missing.
type DiffResult struct {
	Fields          map[string]FieldDifference `json:"fields"`
	MaxDifferencePx float64                    `json:"max_difference_px"`
	MissingFields   []string                   `json:"missing_fields,omitempty"`
}

// AttemptRecord captures the measurement of a single verification attempt.
type AttemptRecord struct {
	AttemptNumber   int                        `json:"attempt_number"`
	MaxDifferencePx float64                    `json:"max_difference_px"`
	Fields          map[string]FieldDifference `json:"fields"`
	ImagePath       string                     `json:"image_path"`
}

// Outcome is the terminal result of one verification call.
// It is created fresh per call and never mutated after return.
type Outcome struct {
	Passed          bool                       `json:"passed"`
	Attempts        int                        `json:"attempts"`
	MaxDifferencePx float64                    `json:"max_difference_px"`
	Fields          map[string]FieldDifference `json:"fields"`
	Message         string                     `json:"message"`
	TolerancePx     float64                    `json:"tolerance_px"`

	// BestAttempt is set when verification exhausted its attempts (or the
	// refiner aborted) without passing; the top-level fields then mirror it.
	BestAttempt       *AttemptRecord `json:"best_attempt,omitempty"`
	UsedBestAvailable bool           `json:"used_best_available"`

	// UsedCache marks outcomes produced by a confirmed cache hit.
	UsedCache bool `json:"used_cache,omitempty"`

	RefinerStats *RefinerStats `json:"refiner_stats,omitempty"`
}
