// Package main is the entry point for the herbscan-api server.
// Users are owned by the hosted auth provider and billing by Stripe; this service
// keeps the entitlement store and the profile plan mirror in step with both.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/herbscan-api/internal/logging"
	"github.com/jmylchreest/herbscan-api/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "herbscan-api",
		Short:         "Herbscan API server",
		Long:          "Serves plant identification and reconciles Stripe billing events into user entitlements.",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), logging.SetDefault())
		},
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newEntitlementCmd(),
		newOpenAPICmd(),
		newVersionCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), logging.SetDefault())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			v := version.Get()
			cmd.Println(v.String())
			cmd.Printf("go: %s, platform: %s\n", v.GoVersion, v.Platform)
		},
	}
}
