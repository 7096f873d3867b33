package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"certalign/internal/alignment"
	"certalign/internal/engine"
)

var verifyOpts struct {
	generated   string
	reference   string
	tolerancePx float64
	maxAttempts int
	fields      map[string]string
	refine      bool
	regenCmd    string
	progress    bool
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify one certificate against the reference",
	Long: `Verifies that the generated certificate's text fields are positioned
within tolerance of the reference. With --regen-cmd, failed attempts
re-invoke the renderer; with --refine, per-field corrections are fed
back between attempts.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := buildVerifyOptions()
		if err != nil {
			return err
		}

		eng := engine.New(opts, cacheStore, statsSource)
		outcome, err := eng.VerifyCertificate(cmd.Context(), verifyOpts.generated, verifyOpts.reference, verifyOpts.fields)
		if err != nil {
			return err
		}

		printOutcome(outcome)
		if !outcome.Passed {
			os.Exit(1)
		}
		return nil
	},
}

// buildVerifyOptions assembles verification options from flags and config.
func buildVerifyOptions() (alignment.Options, error) {
	opts := alignment.DefaultOptions()
	opts.TolerancePx = verifyOpts.tolerancePx
	opts.MaxAttempts = verifyOpts.maxAttempts
	opts.Extractor = cfg.ExtractorOptions()
	opts.UseRefiner = verifyOpts.refine
	opts.Logger = logger

	if cfg.BandsFile != "" {
		bands, err := alignment.LoadBands(cfg.BandsFile)
		if err != nil {
			return opts, fmt.Errorf("bands file: %w", err)
		}
		opts.Bands = bands
	}

	if verifyOpts.regenCmd != "" {
		opts.Regenerator = commandRegenerator(verifyOpts.regenCmd)
	}

	if verifyOpts.progress {
		bar := progressbar.NewOptions(opts.MaxAttempts,
			progressbar.OptionSetDescription("verifying"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		opts.Progress = func(attempt, maxAttempts int) {
			bar.Set(attempt)
		}
	}

	return opts, nil
}

// commandRegenerator wraps a shell command as a Regenerator. The command's
// stdout, trimmed, is taken as the new certificate path; empty output means
// the file was rewritten in place.
func commandRegenerator(command string) alignment.Regenerator {
	return alignment.RegeneratorFunc(func() (string, error) {
		out, err := exec.Command("sh", "-c", command).Output()
		if err != nil {
			return "", fmt.Errorf("regeneration command: %w", err)
		}
		return strings.TrimSpace(string(out)), nil
	})
}

func printOutcome(outcome *alignment.Outcome) {
	fmt.Println(outcome.Message)
	for name, fd := range outcome.Fields {
		if fd.Err != "" {
			fmt.Printf("  %-12s %s (generated=%v reference=%v)\n",
				name, fd.Err, fd.DetectedInGenerated, fd.DetectedInReference)
			continue
		}
		fmt.Printf("  %-12s dy=%.4f dx=%.4f\n", name, fd.YDiff, fd.XDiff)
	}
	if outcome.UsedBestAvailable && outcome.BestAttempt != nil {
		fmt.Printf("  best attempt: %d (%.4f px)\n",
			outcome.BestAttempt.AttemptNumber, outcome.BestAttempt.MaxDifferencePx)
	}
	if outcome.UsedCache {
		fmt.Println("  (confirmed from position cache)")
	}
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyOpts.generated, "generated", "g", "", "Path to the generated certificate image")
	verifyCmd.Flags().StringVarP(&verifyOpts.reference, "reference", "r", "", "Path to the reference certificate image")
	verifyCmd.Flags().Float64VarP(&verifyOpts.tolerancePx, "tolerance", "t", 0.02, "Maximum allowed center offset in pixels")
	verifyCmd.Flags().IntVarP(&verifyOpts.maxAttempts, "attempts", "a", 30, "Maximum verification attempts")
	verifyCmd.Flags().StringToStringVar(&verifyOpts.fields, "field", nil, "Certificate text content as name=value (enables the position cache)")
	verifyCmd.Flags().BoolVar(&verifyOpts.refine, "refine", true, "Feed per-field corrections back between attempts")
	verifyCmd.Flags().StringVar(&verifyOpts.regenCmd, "regen-cmd", "", "Shell command that regenerates the certificate; its stdout is the new path")
	verifyCmd.Flags().BoolVar(&verifyOpts.progress, "progress", false, "Show an attempt progress bar")

	verifyCmd.MarkFlagRequired("generated")
	verifyCmd.MarkFlagRequired("reference")
	rootCmd.AddCommand(verifyCmd)
}
