package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the position cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:          "stats",
	Short:        "Show cache entry counts",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cacheStore == nil {
			return fmt.Errorf("the position cache is disabled")
		}
		s, err := cacheStore.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("backend: %s\nentries: %d\nttl:     %s\n", s.Backend, s.Entries, s.TTL)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:          "clear",
	Short:        "Remove all cached positions",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cacheStore == nil {
			return fmt.Errorf("the position cache is disabled")
		}
		if err := cacheStore.ClearAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("cache cleared")
		return nil
	},
}

var cacheClearExpiredCmd = &cobra.Command{
	Use:          "clear-expired",
	Short:        "Remove cached positions older than the TTL",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cacheStore == nil {
			return fmt.Errorf("the position cache is disabled")
		}
		removed, err := cacheStore.ClearExpired(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("removed %d expired entries\n", removed)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cacheClearExpiredCmd)
	rootCmd.AddCommand(cacheCmd)
}
