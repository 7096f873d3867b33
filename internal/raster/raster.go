// Package raster provides certificate image loading and grayscale
// intensity access for alignment measurement.
package raster

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"certalign/pkg/geometry"

	_ "golang.org/x/image/tiff"
)

// Raster is a decoded image with precomputed 8-bit luminance values.
// It is read-only after construction; verification attempts only query it.
type Raster struct {
	Path   string
	Width  int
	Height int

	// Row-major luminance, Width*Height entries.
	gray []uint8
}

// Load decodes the image at path and converts it to grayscale.
func Load(path string) (*Raster, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	return FromImage(path, img), nil
}

// FromImage builds a Raster from an already decoded image. The path is
// retained for reporting only and may be empty.
func FromImage(path string, img image.Image) *Raster {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	r := &Raster{
		Path:   path,
		Width:  w,
		Height: h,
		gray:   make([]uint8, w*h),
	}

	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < h; y++ {
			copy(r.gray[y*w:(y+1)*w], g.Pix[y*g.Stride:y*g.Stride+w])
		}
		return r
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			r.gray[y*w+x] = c.Y
		}
	}
	return r
}

// Intensity returns the luminance at (x, y). Out-of-range queries return
// 255 (white) so they never count as text.
func (r *Raster) Intensity(x, y int) uint8 {
	if x < 0 || x >= r.Width || y < 0 || y >= r.Height {
		return 255
	}
	return r.gray[y*r.Width+x]
}

// Size returns the image dimensions.
func (r *Raster) Size() geometry.Size {
	return geometry.Size{Width: float64(r.Width), Height: float64(r.Height)}
}

// SameSize reports whether both images have identical pixel dimensions.
// A mismatch is a hard alignment failure, not a measurable difference.
func (r *Raster) SameSize(other *Raster) bool {
	return r.Width == other.Width && r.Height == other.Height
}

// DarkCountInRow counts pixels darker than threshold in row y across [x0, x1).
func (r *Raster) DarkCountInRow(y, x0, x1 int, threshold uint8) int {
	count := 0
	for x := x0; x < x1; x++ {
		if r.Intensity(x, y) < threshold {
			count++
		}
	}
	return count
}

// DarkCountInColumn counts pixels darker than threshold in column x across [y0, y1).
func (r *Raster) DarkCountInColumn(x, y0, y1 int, threshold uint8) int {
	count := 0
	for y := y0; y < y1; y++ {
		if r.Intensity(x, y) < threshold {
			count++
		}
	}
	return count
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".png", ".jpg", ".jpeg", ".tiff", ".tif"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
