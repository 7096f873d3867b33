// Package visual renders comparison images for manual inspection of
// alignment failures.
package visual

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Overlay blends the generated certificate over the reference at the given
// opacity (0..1) and returns the composite. The caller owns the returned
// Mat and must Close it.
func Overlay(generatedPath, referencePath string, opacity float64) (gocv.Mat, error) {
	if opacity < 0 || opacity > 1 {
		return gocv.Mat{}, fmt.Errorf("opacity %g out of range [0, 1]", opacity)
	}

	gen := gocv.IMRead(generatedPath, gocv.IMReadColor)
	if gen.Empty() {
		return gocv.Mat{}, fmt.Errorf("failed to read %s", generatedPath)
	}
	defer gen.Close()

	ref := gocv.IMRead(referencePath, gocv.IMReadColor)
	if ref.Empty() {
		return gocv.Mat{}, fmt.Errorf("failed to read %s", referencePath)
	}
	defer ref.Close()

	if gen.Rows() != ref.Rows() || gen.Cols() != ref.Cols() {
		return gocv.Mat{}, fmt.Errorf("dimension mismatch: generated %dx%d, reference %dx%d",
			gen.Cols(), gen.Rows(), ref.Cols(), ref.Rows())
	}

	out := gocv.NewMat()
	gocv.AddWeighted(ref, 1-opacity, gen, opacity, 0, &out)
	return out, nil
}

// DiffHeatmap renders the per-pixel grayscale difference between the two
// certificates as a jet colormap, making sub-pixel text offsets visible.
// The caller owns the returned Mat and must Close it.
func DiffHeatmap(generatedPath, referencePath string) (gocv.Mat, error) {
	gen := gocv.IMRead(generatedPath, gocv.IMReadGrayScale)
	if gen.Empty() {
		return gocv.Mat{}, fmt.Errorf("failed to read %s", generatedPath)
	}
	defer gen.Close()

	ref := gocv.IMRead(referencePath, gocv.IMReadGrayScale)
	if ref.Empty() {
		return gocv.Mat{}, fmt.Errorf("failed to read %s", referencePath)
	}
	defer ref.Close()

	if gen.Rows() != ref.Rows() || gen.Cols() != ref.Cols() {
		return gocv.Mat{}, fmt.Errorf("dimension mismatch: generated %dx%d, reference %dx%d",
			gen.Cols(), gen.Rows(), ref.Cols(), ref.Rows())
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gen, ref, &diff)

	out := gocv.NewMat()
	gocv.ApplyColorMap(diff, &out, gocv.ColormapJet)
	return out, nil
}

// SaveMat writes the image to path, format inferred from the extension.
func SaveMat(path string, mat gocv.Mat) error {
	if ok := gocv.IMWrite(path, mat); !ok {
		return fmt.Errorf("failed to write %s", path)
	}
	return nil
}
