package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-sorter/internal/config"
	"github.com/kozaktomas/face-sorter/internal/identity"
	"github.com/spf13/cobra"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Re-cluster all faces from scratch",
	Long: `Re-cluster the whole face collection using density-based clustering.

Manually confirmed faces are pinned: they stay with their person and act as
anchors that attract nearby clusters. Automatically grouped faces are
reassigned from scratch and faces that fit no cluster become single-face
persons.

The distance policy comes from the configuration and can be overridden per
run with --preset or the individual flags.

Examples:
  # Re-cluster with the configured policy
  face-sorter cluster

  # See what would happen without writing anything
  face-sorter cluster --preview

  # Use the strict preset but a custom epsilon
  face-sorter cluster --preset strict --eps 0.35`,
	RunE: runCluster,
}

func init() {
	rootCmd.AddCommand(clusterCmd)

	clusterCmd.Flags().Bool("preview", false, "Show cluster sizes and outliers without writing")
	clusterCmd.Flags().String("preset", "", "Policy preset to start from (default, strict, loose)")
	clusterCmd.Flags().Float64("tolerance", 0, "Override assignment tolerance")
	clusterCmd.Flags().Float64("eps", 0, "Override clustering epsilon")
	clusterCmd.Flags().Int("min-samples", 0, "Override minimum cluster size")
}

// resolveClusterPolicy layers the policy sources: configuration, then the
// --preset flag, then individual flag overrides.
func resolveClusterPolicy(cmd *cobra.Command, cfg *config.Config) (identity.DistancePolicy, error) {
	tolerance := cfg.Cluster.Tolerance
	eps := cfg.Cluster.Epsilon
	minSamples := cfg.Cluster.MinSamples

	if name := mustGetString(cmd, "preset"); name != "" {
		preset, ok := cfg.GetPolicyPreset(name)
		if !ok {
			return identity.DistancePolicy{}, fmt.Errorf("unknown policy preset %q", name)
		}
		tolerance = preset.Tolerance
		eps = preset.Epsilon
		minSamples = preset.MinSamples
	}
	if cmd.Flags().Changed("tolerance") {
		tolerance = mustGetFloat64(cmd, "tolerance")
	}
	if cmd.Flags().Changed("eps") {
		eps = mustGetFloat64(cmd, "eps")
	}
	if cmd.Flags().Changed("min-samples") {
		minSamples = mustGetInt(cmd, "min-samples")
	}

	return identity.NewDistancePolicy(tolerance, eps, minSamples)
}

func runCluster(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	policy, err := resolveClusterPolicy(cmd, cfg)
	if err != nil {
		return err
	}

	engine, err := initEngine(cfg, policy)
	if err != nil {
		return err
	}

	ctx := context.Background()
	fmt.Printf("Policy: tolerance=%.2f eps=%.2f min-samples=%d\n", policy.Tolerance, policy.Eps, policy.MinSamples)

	if mustGetBool(cmd, "preview") {
		return runClusterPreview(ctx, engine)
	}

	fmt.Println("Re-clustering faces...")

	var lastStage string
	report, err := engine.Recluster(ctx, identity.WithProgress(func(stage string, done, total int) {
		if done == total && stage != lastStage {
			fmt.Printf("  %s done\n", stage)
			lastStage = stage
		}
	}))
	if err != nil {
		return fmt.Errorf("re-clustering failed: %w", err)
	}

	fmt.Printf("\nFaces processed:  %d\n", report.FacesProcessed)
	fmt.Printf("Persons created:  %d\n", report.PersonsCreated)
	fmt.Printf("Persons merged:   %d\n", report.PersonsMerged)
	fmt.Printf("Manual preserved: %d\n", report.ManualPreserved)
	return nil
}

func runClusterPreview(ctx context.Context, engine *identity.Engine) error {
	preview, err := engine.PreviewClusters(ctx)
	if err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}

	fmt.Printf("Anchored faces: %d\n", preview.AnchoredFaces)
	fmt.Printf("Free faces:     %d\n", preview.FreeFaces)
	fmt.Printf("Clusters:       %d (%d faces)\n", len(preview.ClusterSizes), preview.ClusteredFaces)
	fmt.Printf("Outliers:       %d\n", preview.Outliers)
	if len(preview.ClusterSizes) > 0 {
		fmt.Printf("Cluster sizes:  %v\n", preview.ClusterSizes)
	}
	return nil
}
