package alignment

import (
	"certalign/internal/raster"
)

// ExtractorOptions configures text detection thresholds.
type ExtractorOptions struct {
	// DarkPixelThreshold is the luminance below which a pixel counts as text.
	DarkPixelThreshold uint8

	// MinDarkRowPixels is the dark-pixel count a row must exceed to be
	// classified as containing text.
	MinDarkRowPixels int

	// MinDarkColPixels is the dark-pixel count a column must exceed within
	// the detected row span.
	MinDarkColPixels int
}

// DefaultExtractorOptions returns thresholds tuned for dark text on
// light certificate templates.
func DefaultExtractorOptions() ExtractorOptions {
	return ExtractorOptions{
		DarkPixelThreshold: 200,
		MinDarkRowPixels:   100,
		MinDarkColPixels:   10,
	}
}

// ExtractFieldPositions scans each band of the image for rendered text and
// returns the located fields. A field whose band contains no qualifying
// rows or columns is omitted from the result; absence is the documented
// "not detected" signal, never a defaulted position.
//
// The function is pure over the image data and never fails.
func ExtractFieldPositions(img *raster.Raster, bands []Band, opts ExtractorOptions) map[string]FieldPosition {
	results := make(map[string]FieldPosition, len(bands))

	for _, band := range bands {
		win := band.Window(img.Width, img.Height)

		// Rows with enough dark pixels delimit the text block.
		textStart, textEnd := -1, -1
		for y := win.Y; y < win.Y+win.Height; y++ {
			if img.DarkCountInRow(y, 0, img.Width, opts.DarkPixelThreshold) > opts.MinDarkRowPixels {
				if textStart < 0 {
					textStart = y
				}
				textEnd = y
			}
		}
		if textStart < 0 {
			continue
		}

		// Column scan within the detected row span, inclusive of textEnd.
		left, right := -1, -1
		for x := 0; x < img.Width; x++ {
			if img.DarkCountInColumn(x, textStart, textEnd+1, opts.DarkPixelThreshold) > opts.MinDarkColPixels {
				if left < 0 {
					left = x
				}
				right = x
			}
		}
		if left < 0 {
			continue
		}

		yCenter := float64(textStart+textEnd) / 2
		xCenter := float64(left+right) / 2

		results[band.Name] = FieldPosition{
			Name:        band.Name,
			YCenter:     yCenter,
			XCenter:     xCenter,
			YStart:      textStart,
			YEnd:        textEnd,
			NormalizedY: yCenter / float64(img.Height),
			NormalizedX: xCenter / float64(img.Width),
		}
	}

	return results
}
