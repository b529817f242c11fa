package cmd

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/face-sorter/internal/config"
	"github.com/kozaktomas/face-sorter/internal/database/postgres"
	"github.com/kozaktomas/face-sorter/internal/identity"
)

// defaultPolicy builds the distance policy from the resolved configuration.
func defaultPolicy(cfg *config.Config) (identity.DistancePolicy, error) {
	policy, err := identity.NewDistancePolicy(cfg.Cluster.Tolerance, cfg.Cluster.Epsilon, cfg.Cluster.MinSamples)
	if err != nil {
		return identity.DistancePolicy{}, fmt.Errorf("invalid cluster policy: %w", err)
	}
	return policy, nil
}

// initEngine connects to PostgreSQL and builds the identity engine on top of
// it. One-shot commands always need the persistent store; only serve can fall
// back to the in-memory one.
func initEngine(cfg *config.Config, policy identity.DistancePolicy) (*identity.Engine, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Println("Connecting to PostgreSQL...")
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	return identity.NewEngine(postgres.GetGlobalStore(), policy), nil
}
