package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go_mock_resolver/app"
	"go_mock_resolver/internal/domain/registry"
	configs "go_mock_resolver/internal/infra/config"
	"go_mock_resolver/internal/infra/storage"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "mock_resolver",
		Short:         "HTTP mock server with rule matching, templating and proxy fallback",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default configs/app.$RULE_ENV.yaml)")
	root.AddCommand(newServeCmd(&configPath), newValidateCmd())
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load rules and start serving mock traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, cleanup, err := app.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize app: %w", err)
			}
			defer cleanup()
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <rules-file>",
		Short: "Check a YAML or JSON rules file without starting the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := storage.LoadRuleFile(args[0])
			if err != nil {
				return err
			}
			reg := registry.New()
			for _, r := range rules {
				if r.ID == "" {
					r.ID = uuid.NewString()
				}
			}
			if err := reg.Load(rules); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rules ok (%d enabled)\n", args[0], reg.Snapshot().Len(), len(reg.Snapshot().Enabled()))
			return nil
		},
	}
}

func loadConfig(path string) (*configs.RuleConfig, error) {
	if path != "" {
		if err := os.Setenv("RULE_CONFIG_PATH", path); err != nil {
			return nil, err
		}
	}
	return configs.LoadRuleConfig()
}

