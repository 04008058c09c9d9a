package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"harvest/internal/config"
	"harvest/internal/logging"
	"harvest/internal/notifications"
	"harvest/internal/producer"
	"harvest/internal/stagestore"
)

// newRunCommand harvests sources directly, without going through the daemon.
// Producer runs are designed to be safe alongside a running daemon: they only
// append to the manifest and write new raw files.
func newRunCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [source...]",
		Short: "Harvest enabled sources into the raw stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			selected, err := selectSources(cfg, args)
			if err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store := stagestore.New(cfg)
			if err := store.EnsureLayout(); err != nil {
				return fmt.Errorf("prepare stage store: %w", err)
			}
			runner := producer.NewRunner(store, logger)
			notifier := notifications.NewService(cfg)

			out := cmd.OutOrStdout()
			for _, name := range selected {
				sourceCfg := cfg.Sources[name]
				source, err := producer.NewFeedSource(name, sourceCfg)
				if err != nil {
					return err
				}
				result, err := runner.Run(cmd.Context(), source, sourceCfg)
				if err != nil {
					return fmt.Errorf("harvest %s: %w", name, err)
				}
				fmt.Fprintf(out, "%s: %d new, %d downloaded, %d skipped\n",
					name, result.Discovered, result.Downloaded, result.Skipped)
				if notifyErr := notifier.NotifyHarvestCompleted(cmd.Context(), name, result.Downloaded, result.Skipped); notifyErr != nil {
					logger.Warn("harvest notification failed", logging.Error(notifyErr))
				}
			}
			return nil
		},
	}
	return cmd
}

func selectSources(cfg *config.Config, args []string) ([]string, error) {
	if len(args) > 0 {
		for _, name := range args {
			if _, ok := cfg.Sources[name]; !ok {
				return nil, fmt.Errorf("unknown source %q", name)
			}
		}
		return args, nil
	}

	var enabled []string
	for name, source := range cfg.Sources {
		if source.Enabled {
			enabled = append(enabled, name)
		}
	}
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no enabled sources: add [sources.<name>] entries to the config")
	}
	sort.Strings(enabled)
	return enabled, nil
}
