package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/herbscan-api/internal/http/routes"
	"github.com/jmylchreest/herbscan-api/internal/logging"
	"github.com/jmylchreest/herbscan-api/internal/service"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.SetDefault()
			cfg, st, err := openMigratedStore(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer st.close()
			logger.Info("migrations applied", "driver", cfg.DatabaseDriver)
			return nil
		},
	}
}

func newEntitlementCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entitlement",
		Short: "Inspect and repair entitlements",
	}
	cmd.AddCommand(newEntitlementShowCmd(), newEntitlementSyncCmd())
	return cmd
}

// entitlementView is printed by "entitlement show".
type entitlementView struct {
	UserID        string     `json:"user_id"`
	IsPro         bool       `json:"is_pro"`
	Entitled      bool       `json:"entitled"`
	PeriodEnd     *time.Time `json:"period_end"`
	DaysRemaining *int       `json:"days_remaining"`
	Plan          string     `json:"plan"`
	ProfilePlan   *string    `json:"profile_plan"`
	CustomerID    string     `json:"stripe_customer_id,omitempty"`
}

func newEntitlementShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <user_id>",
		Short: "Print a user's entitlement and mirrored profile plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := logging.SetDefault()
			_, st, err := openMigratedStore(ctx, logger)
			if err != nil {
				return err
			}
			defer st.close()

			userID := args[0]
			status, err := service.NewEntitlementService(st.repos.Entitlement, logger).Status(ctx, userID)
			if err != nil {
				return err
			}
			profile, err := st.repos.Profile.Get(ctx, userID)
			if err != nil {
				return fmt.Errorf("failed to get profile: %w", err)
			}

			view := entitlementView{
				UserID:        userID,
				IsPro:         status.IsPro,
				Entitled:      status.Entitled,
				PeriodEnd:     status.PeriodEnd,
				DaysRemaining: status.DaysRemaining,
				Plan:          string(status.Plan),
				CustomerID:    status.CustomerID,
			}
			if profile != nil {
				plan := string(profile.Plan)
				view.ProfilePlan = &plan
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
}

func newEntitlementSyncCmd() *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "sync-profiles",
		Short: "Run one profile plan sweep and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := logging.SetDefault()
			cfg, st, err := openMigratedStore(ctx, logger)
			if err != nil {
				return err
			}
			defer st.close()

			if batchSize <= 0 {
				batchSize = cfg.ProfileSyncBatchSize
			}
			result, err := service.NewProfileSyncService(st.repos.Profile, batchSize, logger).Sync(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("checked %d, corrected %d, errors %d\n", result.Checked, result.Corrected, len(result.Errors))
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d profiles could not be corrected", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "profiles per batch (default PROFILE_SYNC_BATCH_SIZE)")
	return cmd
}

func newOpenAPICmd() *cobra.Command {
	var (
		output  string
		asYAML  bool
		baseURL string
	)
	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI document without starting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api := humachi.New(chi.NewRouter(), routes.NewHumaConfig(baseURL))
			routes.Register(api, routes.StubHandlers())
			routes.DocumentRawEndpoints(api)

			var (
				data []byte
				err  error
			)
			if asYAML {
				data, err = yaml.Marshal(api.OpenAPI())
			} else {
				data, err = json.MarshalIndent(api.OpenAPI(), "", "  ")
			}
			if err != nil {
				return fmt.Errorf("failed to marshal OpenAPI document: %w", err)
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			cmd.PrintErrf("OpenAPI document written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "emit YAML instead of JSON")
	cmd.Flags().StringVar(&baseURL, "base-url", "https://api.herbscan.app", "server URL in the document")
	return cmd
}
