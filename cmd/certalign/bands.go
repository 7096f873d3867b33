package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"certalign/internal/alignment"
)

var bandsInitFlag string

var bandsCmd = &cobra.Command{
	Use:          "bands",
	Short:        "Show or initialize the field band configuration",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if bandsInitFlag != "" {
			if err := alignment.SaveBands(bandsInitFlag, alignment.DefaultBands()); err != nil {
				return err
			}
			fmt.Printf("wrote default bands to %s\n", bandsInitFlag)
			return nil
		}

		bands := alignment.DefaultBands()
		if cfg.BandsFile != "" {
			loaded, err := alignment.LoadBands(cfg.BandsFile)
			if err != nil {
				return err
			}
			bands = loaded
			fmt.Printf("bands from %s:\n", cfg.BandsFile)
		} else {
			fmt.Println("default bands:")
		}

		for _, b := range bands {
			fmt.Printf("  %-12s %.2f - %.2f\n", b.Name, b.Top, b.Bottom)
		}
		return nil
	},
}

func init() {
	bandsCmd.Flags().StringVar(&bandsInitFlag, "init", "", "Write the default bands to the given file")
	rootCmd.AddCommand(bandsCmd)
}
