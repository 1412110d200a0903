// Package cli implements the keysvc-admin command-line tool. It talks to the
// key store directly, which makes it usable even when the HTTP surface is
// down, misbehaving or mid-incident.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crewbill/keysvc/internal/application"
	"github.com/crewbill/keysvc/internal/config"
	"github.com/crewbill/keysvc/internal/infrastructure/audit"
	"github.com/crewbill/keysvc/internal/infrastructure/monitoring"
	"github.com/crewbill/keysvc/internal/infrastructure/persistence/postgres"
)

var rootCmd = &cobra.Command{
	Use:   "keysvc-admin",
	Short: "Admin CLI for the signing key service",
	Long: `keysvc-admin performs key lifecycle operations against the key store
directly: listing and inspecting keys, rotating (including emergency
rotation), revoking, re-activating and retention cleanup.`,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// services wires the minimal dependency set the CLI needs. No cache, no
// scheduler; rotation events go to the log audit sink.
func services(ctx context.Context) (*application.RotationService, *application.HealthService, error) {
	log, err := monitoring.NewZapLogger(&config.LogConfig{Level: "warn", Format: "console"})
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.LoadConfig(log)
	if err != nil {
		return nil, nil, err
	}

	db, err := postgres.NewDBConnection(ctx, &cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}

	repo := postgres.NewKeyRepository(db)
	rotation := application.NewRotationService(
		repo, nil, audit.NewLogAuditService(log), nil,
		cfg.Keys.DefaultLifetime(), cfg.Keys.RetentionWindow(), cfg.Keys.SigningAlgorithm(),
		log, nil,
	)
	health := application.NewHealthService(repo, nil, cfg.Keys.CacheTTL(), log, nil)
	return rotation, health, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
