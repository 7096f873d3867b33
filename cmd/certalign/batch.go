package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"certalign/internal/alignment"
	"certalign/internal/engine"
)

var batchOpts struct {
	manifest    string
	reference   string
	tolerancePx float64
	maxAttempts int
	workers     int
}

// batchJob is one entry in the batch manifest.
type batchJob struct {
	Generated string            `json:"generated"`
	Reference string            `json:"reference,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

type batchResult struct {
	job     batchJob
	outcome *alignment.Outcome
	err     error
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Verify a manifest of certificates with parallel workers",
	Long: `Reads a JSON manifest of verification jobs and runs them across a
worker pool. Each job names a generated image and optionally its own
reference and text content; jobs without a reference use --reference.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := loadManifest(batchOpts.manifest)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return fmt.Errorf("manifest %s contains no jobs", batchOpts.manifest)
		}

		return runBatch(cmd.Context(), jobs)
	},
}

func loadManifest(path string) ([]batchJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var jobs []batchJob
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return jobs, nil
}

func runBatch(ctx context.Context, jobs []batchJob) error {
	opts := alignment.DefaultOptions()
	opts.TolerancePx = batchOpts.tolerancePx
	opts.MaxAttempts = batchOpts.maxAttempts
	opts.Extractor = cfg.ExtractorOptions()
	opts.Logger = logger
	if cfg.BandsFile != "" {
		bands, err := alignment.LoadBands(cfg.BandsFile)
		if err != nil {
			return fmt.Errorf("bands file: %w", err)
		}
		opts.Bands = bands
	}

	eng := engine.New(opts, cacheStore, statsSource)

	bar := progressbar.NewOptions(len(jobs),
		progressbar.OptionSetDescription("batch verify"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	jobChan := make(chan batchJob, batchOpts.workers)
	resultChan := make(chan batchResult, batchOpts.workers*2)
	var wg sync.WaitGroup

	for i := 0; i < batchOpts.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobChan {
				reference := job.Reference
				if reference == "" {
					reference = batchOpts.reference
				}
				outcome, err := eng.VerifyCertificate(ctx, job.Generated, reference, job.Fields)
				resultChan <- batchResult{job: job, outcome: outcome, err: err}
			}
		}()
	}

	go func() {
		defer close(jobChan)
		for _, job := range jobs {
			select {
			case jobChan <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	passed, failed, errored := 0, 0, 0
	for res := range resultChan {
		bar.Add(1)
		switch {
		case res.err != nil:
			errored++
			fmt.Printf("ERROR  %s: %v\n", res.job.Generated, res.err)
		case res.outcome.Passed:
			passed++
		default:
			failed++
			fmt.Printf("FAILED %s: %s\n", res.job.Generated, res.outcome.Message)
		}
	}

	fmt.Printf("\n%d jobs: %d passed, %d failed, %d errored\n",
		len(jobs), passed, failed, errored)
	if failed > 0 || errored > 0 {
		os.Exit(1)
	}
	return nil
}

func init() {
	batchCmd.Flags().StringVarP(&batchOpts.manifest, "manifest", "m", "", "Path to the JSON job manifest")
	batchCmd.Flags().StringVarP(&batchOpts.reference, "reference", "r", "", "Default reference image for jobs that name none")
	batchCmd.Flags().Float64VarP(&batchOpts.tolerancePx, "tolerance", "t", 0.02, "Maximum allowed center offset in pixels")
	batchCmd.Flags().IntVarP(&batchOpts.maxAttempts, "attempts", "a", 30, "Maximum verification attempts per job")
	batchCmd.Flags().IntVarP(&batchOpts.workers, "workers", "w", 4, "Number of parallel workers")

	batchCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(batchCmd)
}
