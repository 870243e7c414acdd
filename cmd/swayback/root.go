package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/swayback/swayback/internal/config"
	"github.com/swayback/swayback/internal/ipc"
	"github.com/swayback/swayback/internal/layout"
	"github.com/swayback/swayback/internal/util"
)

// Version is stamped by the linker at release time.
var Version = "dev"

var (
	// Global flags.
	flagConfig   string
	flagLogLevel string
	flagSocket   string
)

var rootCmd = &cobra.Command{
	Use:   "swayback",
	Short: "Save and restore sway window layouts",
	Long: `swayback remembers how you arrange your windows.

It captures per-workspace layouts keyed by the set of windows present,
and rebuilds a stored arrangement by issuing sway commands until the live
tree matches. Run "swayback watch" as a daemon to save and restore
automatically, or use the save/restore subcommands by hand.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", envOrDefault("SWAYBACK_CONFIG", ""),
		"path to YAML config (default ~/.config/swayback/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", envOrDefault("SWAYBACK_LOG_LEVEL", ""),
		"log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&flagSocket, "socket", envOrDefault("SWAYBACK_CONTROL_SOCKET", ""),
		"control socket of the watch daemon")
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// configPath resolves the config file location without touching the
// filesystem.
func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "swayback", "config.yaml")
}

// loadConfig loads the config file, falling back to built-in defaults
// when the default path does not exist. An explicit --config that cannot
// be read is an error.
func loadConfig() (*config.Config, error) {
	path := configPath()
	if flagConfig == "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func newLogger(cfg *config.Config) *util.Logger {
	level := cfg.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	return util.NewLogger(util.ParseLogLevel(level))
}

// newManagerClient connects to the window manager via SWAYSOCK/I3SOCK.
func newManagerClient() (*ipc.Client, error) {
	client, err := ipc.NewClient()
	if err != nil {
		return nil, fmt.Errorf("connect to window manager: %w", err)
	}
	return client, nil
}

// resolveWorkspace returns the requested workspace, or the focused one
// when the request is empty.
func resolveWorkspace(ctx context.Context, client *ipc.Client, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	root, err := client.Tree(ctx)
	if err != nil {
		return "", err
	}
	ws := root.FocusedWorkspace()
	if ws == nil {
		return "", errors.New("no focused workspace")
	}
	return ws.Name, nil
}

// captureWorkspace snapshots one workspace's live layout.
func captureWorkspace(ctx context.Context, client *ipc.Client, requested string) (*layout.Layout, error) {
	workspace, err := resolveWorkspace(ctx, client, requested)
	if err != nil {
		return nil, err
	}
	live, err := layout.FromWorkspace(ctx, client, workspace)
	if err != nil {
		return nil, err
	}
	return live, nil
}
