package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"veilpay/internal/platform/config"
	"veilpay/internal/platform/logger"
	"veilpay/internal/system"
)

func newRootCmd() *cobra.Command {
	var (
		demo        bool
		interactive bool
		export      bool
		status      bool
	)

	cmd := &cobra.Command{
		Use:   "veilpay",
		Short: "Privacy-preserving digital currency settlement node",
		Long: `veilpay runs a single settlement node: wallet registry, token ledger,
voucher authority, compliance engine, audit ledger, and the online and
offline transfer pipelines.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !demo && !interactive && !export && !status {
				return cmd.Help()
			}

			cfg := config.FromEnv()
			log := logger.New(cfg.LogLevel)
			sys, err := system.New(cfg, log,
				system.WithRegisterer(prometheus.DefaultRegisterer))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if demo {
				if err := sys.RunDemo(ctx); err != nil {
					return err
				}
			}
			if status {
				fmt.Fprintln(cmd.OutOrStdout(), sys.Status(ctx).Describe())
			}
			if export {
				files, err := sys.ExportAll(ctx)
				if err != nil {
					return err
				}
				for label, path := range files {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", label, path)
				}
			}
			if interactive {
				return runREPL(ctx, sys, cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&demo, "demo", false, "run the demonstration scenario")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "start the interactive shell")
	cmd.Flags().BoolVar(&export, "export", false, "export all reports")
	cmd.Flags().BoolVar(&status, "status", false, "print the system status")
	return cmd
}
