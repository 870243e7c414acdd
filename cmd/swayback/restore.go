package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/swayback/swayback/internal/config"
	"github.com/swayback/swayback/internal/layout"
	"github.com/swayback/swayback/internal/restore"
	"github.com/swayback/swayback/internal/store"
	"github.com/swayback/swayback/internal/telemetry"
)

var (
	restoreName      string
	restoreWorkspace string
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Rebuild a stored layout on the live workspace",
	Long: `Restore a stored arrangement onto the focused (or named) workspace.

Without --name the snapshot database is consulted using the workspace's
current window-set signature. With --name the named layout file is used;
its windows must be present on the workspace.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		ctx := cmd.Context()

		tel, err := telemetry.Init(ctx, telemetry.Config{
			Endpoint: cfg.Telemetry.Endpoint,
			Headers:  cfg.Telemetry.Headers,
		})
		if err != nil {
			logger.Warnf("telemetry init failed: %v", err)
		}
		if tel != nil {
			defer tel.Shutdown(ctx)
		}

		client, err := newManagerClient()
		if err != nil {
			return err
		}
		live, err := captureWorkspace(ctx, client, restoreWorkspace)
		if err != nil {
			return err
		}
		target, err := loadTarget(cfg, live)
		if err != nil {
			return err
		}
		target.Output = live.Output
		if err := layout.Match(target, live); err != nil {
			return err
		}
		if layout.EqualPrecise(target, live) {
			fmt.Printf("workspace %s already matches\n", live.Workspace)
			return nil
		}
		logger.Infof("target layout:\n%s", target)

		planner := restore.NewPlanner(client, logger, plannerOptions(cfg))
		res, runErr := planner.Restore(ctx, target)
		if tel != nil {
			tel.Metrics.RecordRestore(ctx, res.State.String(), res.Iterations)
		}
		if runErr != nil {
			if errors.Is(runErr, restore.ErrExhausted) || errors.Is(runErr, restore.ErrMismatched) {
				fmt.Fprintf(os.Stderr, "gave up after %d commands (%s, similarity %.3f)\n",
					res.Iterations, res.State, res.Similarity)
			}
			return runErr
		}
		if err := planner.CorrectGeometry(ctx, target); err != nil {
			return err
		}
		fmt.Printf("restored workspace %s in %d commands\n", live.Workspace, res.Iterations)
		return nil
	},
}

// loadTarget picks the restore source: a named layout file, or the
// database entry for the live window set.
func loadTarget(cfg *config.Config, live *layout.Layout) (*layout.Layout, error) {
	if restoreName != "" {
		rec, err := store.NewLibrary(cfg.LayoutsDir).Load(restoreName)
		if err != nil {
			return nil, err
		}
		target, err := layout.FromRecord(rec)
		if err != nil {
			return nil, err
		}
		target.Workspace = live.Workspace
		return target, nil
	}
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	rec, ok, err := db.Get(live.Workspace, live.Signature())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no snapshot for workspace %q with the current windows", live.Workspace)
	}
	return layout.FromRecord(rec)
}

func plannerOptions(cfg *config.Config) restore.Options {
	return restore.Options{
		Budget:         cfg.CommandBudget,
		ImprovingLimit: cfg.ImprovingLimit,
		Tolerance:      cfg.GeometryTolerance,
	}
}

func init() {
	restoreCmd.Flags().StringVar(&restoreName, "name", "", "restore a named layout instead of the database entry")
	restoreCmd.Flags().StringVar(&restoreWorkspace, "workspace", "", "workspace to restore (default: focused)")
	rootCmd.AddCommand(restoreCmd)
}
