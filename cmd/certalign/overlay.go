package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"certalign/internal/visual"
)

var overlayOpts struct {
	generated string
	reference string
	output    string
	opacity   float64
	heatmap   bool
}

var overlayCmd = &cobra.Command{
	Use:          "overlay",
	Short:        "Render a visual comparison of two certificates",
	Long:         "Blends the generated certificate over the reference, or renders a difference heatmap with --heatmap, for manual inspection of misalignments.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		mat, err := renderComparison()
		if err != nil {
			return err
		}
		defer mat.Close()

		if err := visual.SaveMat(overlayOpts.output, mat); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", overlayOpts.output)
		return nil
	},
}

func renderComparison() (gocv.Mat, error) {
	if overlayOpts.heatmap {
		return visual.DiffHeatmap(overlayOpts.generated, overlayOpts.reference)
	}
	return visual.Overlay(overlayOpts.generated, overlayOpts.reference, overlayOpts.opacity)
}

func init() {
	overlayCmd.Flags().StringVarP(&overlayOpts.generated, "generated", "g", "", "Path to the generated certificate image")
	overlayCmd.Flags().StringVarP(&overlayOpts.reference, "reference", "r", "", "Path to the reference certificate image")
	overlayCmd.Flags().StringVarP(&overlayOpts.output, "output", "o", "comparison.png", "Output image path")
	overlayCmd.Flags().Float64Var(&overlayOpts.opacity, "opacity", 0.5, "Generated image opacity in the blend")
	overlayCmd.Flags().BoolVar(&overlayOpts.heatmap, "heatmap", false, "Render a difference heatmap instead of a blend")

	overlayCmd.MarkFlagRequired("generated")
	overlayCmd.MarkFlagRequired("reference")
	rootCmd.AddCommand(overlayCmd)
}
