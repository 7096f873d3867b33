package alignment

import "math"

// CalculatePositionDifference compares generated positions against reference
// positions for the given field names. A field missing on either side is
// recorded as a detection error and forces MaxDifferencePx to +Inf: a field
// that cannot be measured is an unbounded failure, never a silent skip.
func CalculatePositionDifference(generated, reference map[string]FieldPosition, fields []string) DiffResult {
	result := DiffResult{
		Fields: make(map[string]FieldDifference, len(fields)),
	}

	for _, name := range fields {
		gen, genOK := generated[name]
		ref, refOK := reference[name]

		if !genOK || !refOK {
			result.Fields[name] = FieldDifference{
				Name:                name,
				Err:                 ErrNotDetected,
				DetectedInGenerated: genOK,
				DetectedInReference: refOK,
			}
			result.MissingFields = append(result.MissingFields, name)
			result.MaxDifferencePx = math.Inf(1)
			continue
		}

		yDiff := math.Abs(gen.YCenter - ref.YCenter)
		xDiff := math.Abs(gen.XCenter - ref.XCenter)

		result.Fields[name] = FieldDifference{
			Name:                name,
			YDiff:               yDiff,
			XDiff:               xDiff,
			YCenterGen:          gen.YCenter,
			YCenterRef:          ref.YCenter,
			XCenterGen:          gen.XCenter,
			XCenterRef:          ref.XCenter,
			DetectedInGenerated: true,
			DetectedInReference: true,
		}

		result.MaxDifferencePx = math.Max(result.MaxDifferencePx, math.Max(yDiff, xDiff))
	}

	return result
}
