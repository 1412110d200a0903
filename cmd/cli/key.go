package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/pkg/constants"
)

func init() {
	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "Manage signing keys",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all signing keys, secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			rotation, _, err := services(cmd.Context())
			if err != nil {
				return err
			}
			keys, err := rotation.ListKeys(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(keys)
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <key_id>",
		Short: "Show one signing key, secret redacted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rotation, _, err := services(cmd.Context())
			if err != nil {
				return err
			}
			key, err := rotation.GetKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(key)
		},
	}

	rotateCmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate the active signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			lifetimeDays, _ := cmd.Flags().GetInt("lifetime-days")
			actor, _ := cmd.Flags().GetString("by")

			rotation, _, err := services(cmd.Context())
			if err != nil {
				return err
			}
			result, err := rotation.RotateKeys(cmd.Context(), models.RotationOptions{
				RotationType:    constants.RotationTypeManual,
				KeyLifetimeDays: lifetimeDays,
				CreatedBy:       actor,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	rotateCmd.Flags().Int("lifetime-days", 0, "Override the configured key lifetime")
	rotateCmd.Flags().String("by", "", "Actor recorded on the new key")

	emergencyCmd := &cobra.Command{
		Use:   "emergency-rotate",
		Short: "Revoke every key and activate a fresh one",
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			if reason == "" {
				return fmt.Errorf("--reason is required")
			}
			actor, _ := cmd.Flags().GetString("by")

			rotation, _, err := services(cmd.Context())
			if err != nil {
				return err
			}
			result, err := rotation.EmergencyRotation(cmd.Context(), reason, models.RotationOptions{
				CreatedBy: actor,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	emergencyCmd.Flags().String("reason", "", "Why the emergency rotation is needed")
	emergencyCmd.Flags().String("by", "", "Actor recorded on the new key")

	revokeCmd := &cobra.Command{
		Use:   "revoke <key_id>",
		Short: "Revoke a non-active signing key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")

			rotation, _, err := services(cmd.Context())
			if err != nil {
				return err
			}
			key, err := rotation.RevokeKey(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			return printJSON(key)
		},
	}
	revokeCmd.Flags().String("reason", "", "Why the key is being revoked")

	activateCmd := &cobra.Command{
		Use:   "activate <key_id>",
		Short: "Promote a valid key back to active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rotation, _, err := services(cmd.Context())
			if err != nil {
				return err
			}
			key, err := rotation.ActivateKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(key)
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete revoked keys past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			rotation, _, err := services(cmd.Context())
			if err != nil {
				return err
			}
			deleted, err := rotation.CleanupRevoked(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d revoked keys\n", deleted)
			return nil
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Report key subsystem health",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, health, err := services(cmd.Context())
			if err != nil {
				return err
			}
			report, err := health.Check(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}

	keyCmd.AddCommand(listCmd, getCmd, rotateCmd, emergencyCmd, revokeCmd, activateCmd, cleanupCmd)
	rootCmd.AddCommand(keyCmd, healthCmd)
}
