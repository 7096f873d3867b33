package alignment

import (
	"encoding/json"
	"fmt"
	"os"

	"certalign/pkg/geometry"
)

// Band defines the vertical search window for one field, expressed as
// fractions of image height so the same configuration works across
// template resolutions.
type Band struct {
	Name   string  `json:"name"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// Window returns the pixel region the band covers in an image of the
// given dimensions. Rows span [Y, Y+Height).
func (b Band) Window(width, height int) geometry.RectInt {
	y0 := int(float64(height) * b.Top)
	y1 := int(float64(height) * b.Bottom)
	return geometry.RectInt{X: 0, Y: y0, Width: width, Height: y1 - y0}
}

// DefaultBands returns the standard certificate template bands.
func DefaultBands() []Band {
	return []Band{
		{Name: "name", Top: 0.20, Bottom: 0.40},
		{Name: "event", Top: 0.40, Bottom: 0.58},
		{Name: "organiser", Top: 0.55, Bottom: 0.70},
	}
}

// FieldNames returns the field names of the bands, in band order.
func FieldNames(bands []Band) []string {
	names := make([]string, len(bands))
	for i, b := range bands {
		names[i] = b.Name
	}
	return names
}

// ValidateBands checks band names and fractions.
func ValidateBands(bands []Band) error {
	if len(bands) == 0 {
		return fmt.Errorf("no bands configured")
	}
	seen := make(map[string]bool, len(bands))
	for _, b := range bands {
		if b.Name == "" {
			return fmt.Errorf("band with empty name")
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate band %q", b.Name)
		}
		seen[b.Name] = true
		if b.Top < 0 || b.Bottom > 1 || b.Top >= b.Bottom {
			return fmt.Errorf("band %q has invalid range [%g, %g]", b.Name, b.Top, b.Bottom)
		}
	}
	return nil
}

// LoadBands loads a band configuration from a JSON file.
func LoadBands(path string) ([]Band, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var bands []Band
	if err := json.Unmarshal(data, &bands); err != nil {
		return nil, fmt.Errorf("failed to parse bands file %s: %w", path, err)
	}
	if err := ValidateBands(bands); err != nil {
		return nil, err
	}

	return bands, nil
}

// SaveBands writes a band configuration to a JSON file.
func SaveBands(path string, bands []Band) error {
	if err := ValidateBands(bands); err != nil {
		return err
	}

	data, err := json.MarshalIndent(bands, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
