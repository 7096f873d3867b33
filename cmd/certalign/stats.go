package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"certalign/internal/stats"
)

var statsResetFlag bool

var statsCmd = &cobra.Command{
	Use:          "stats",
	Short:        "Show aggregate verification statistics",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsSource == nil {
			return fmt.Errorf("stats recording is disabled")
		}

		if statsResetFlag {
			if err := statsSource.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("statistics reset")
			return nil
		}

		summary, err := statsSource.Summary(cmd.Context())
		if err != nil {
			return err
		}
		printSummary(summary)
		return nil
	},
}

func printSummary(s stats.Summary) {
	fmt.Printf("verifications: %d (%d passed, %d failed)\n",
		s.TotalVerifications, s.TotalPassed, s.TotalFailed)
	if s.TotalVerifications == 0 {
		return
	}

	fmt.Printf("success rate:  %.1f%%\n", s.SuccessRate)
	fmt.Printf("attempts:      avg %.1f, most common %d\n",
		s.AverageAttempts, s.MostCommonAttempts)

	if len(s.AttemptsDistribution) > 0 {
		keys := make([]int, 0, len(s.AttemptsDistribution))
		for k := range s.AttemptsDistribution {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		fmt.Println("distribution:")
		for _, k := range keys {
			fmt.Printf("  %3d attempt(s): %d\n", k, s.AttemptsDistribution[k])
		}
	}

	if len(s.ProblemFields) > 0 {
		fmt.Println("problem fields:")
		for _, pf := range s.ProblemFields {
			fmt.Printf("  %-12s %d failure(s)\n", pf.Name, pf.Count)
		}
	}

	fmt.Println("recommendations:")
	for _, rec := range stats.Recommendations(s) {
		fmt.Printf("  - %s\n", rec)
	}
}

func init() {
	statsCmd.Flags().BoolVar(&statsResetFlag, "reset", false, "Discard all recorded statistics")
	rootCmd.AddCommand(statsCmd)
}
