package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-sorter/internal/config"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show face collection statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	policy, err := defaultPolicy(cfg)
	if err != nil {
		return err
	}
	engine, err := initEngine(cfg, policy)
	if err != nil {
		return err
	}

	stats, err := engine.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}

	fmt.Printf("Persons:          %d\n", stats.Persons)
	fmt.Printf("Faces:            %d\n", stats.Faces)
	fmt.Printf("Images:           %d\n", stats.Images)
	fmt.Printf("Manual faces:     %d\n", stats.ManualFaces)
	fmt.Printf("Automatic faces:  %d\n", stats.AutomaticFaces)
	fmt.Printf("Faces per person: %.1f\n", stats.AvgFacesPerPerson)
	fmt.Printf("\nPolicy: tolerance=%.2f eps=%.2f min-samples=%d\n",
		stats.Policy.Tolerance, stats.Policy.Eps, stats.Policy.MinSamples)
	return nil
}
