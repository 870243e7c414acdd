package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/swayback/swayback/internal/control"
	"github.com/swayback/swayback/internal/engine"
	"github.com/swayback/swayback/internal/restore"
	"github.com/swayback/swayback/internal/store"
	"github.com/swayback/swayback/internal/telemetry"
	"github.com/swayback/swayback/internal/util"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the save/restore daemon",
	Long: `Watch window and binding events and keep the snapshot database current.

Whenever you rearrange a workspace, its layout is saved under the current
window-set signature. Whenever a known window set reappears (workspace
switch, window reopened), the stored arrangement is rebuilt. The config
file is hot-reloaded on change and on SIGHUP; a control socket accepts
status/save/restore/reload requests from "swayback ctl".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch()
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// daemonBridge narrows the engine to the slice the control socket needs.
type daemonBridge struct {
	eng *engine.Engine
}

func (d daemonBridge) Status() control.DaemonStatus {
	stats := d.eng.Status()
	return control.DaemonStatus{
		Saves:    stats.Saves,
		Restores: stats.Restores,
		Failures: stats.Failures,
	}
}

func (d daemonBridge) Save(ctx context.Context, workspace string) error {
	return d.eng.Save(ctx, workspace)
}

func (d daemonBridge) Restore(ctx context.Context, workspace string) error {
	return d.eng.Restore(ctx, workspace)
}

func runWatch() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetry.Version = Version
	tel, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint: cfg.Telemetry.Endpoint,
		Headers:  cfg.Telemetry.Headers,
	})
	if err != nil {
		logger.Warnf("telemetry init failed: %v", err)
	}
	if tel != nil {
		defer tel.Shutdown(context.Background())
	}
	var metrics *telemetry.Metrics
	if tel != nil {
		metrics = tel.Metrics
	}

	client, err := newManagerClient()
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	planner := restore.NewPlanner(client, logger, plannerOptions(cfg))
	eng := engine.New(client, db, planner, logger, metrics,
		cfg.TriggerCommands, time.Duration(cfg.SettleDelayMs)*time.Millisecond)

	reloadRequests := make(chan string, 1)
	reloader := newConfigReloader(configPath(), logger, eng)
	if err := startConfigWatcher(ctx, logger, configPath(), reloadRequests); err != nil {
		logger.Debugf("config watcher disabled: %v", err)
	}

	reload := func(reason string) error {
		return reloader.Reload(reason)
	}

	ctrlSrv, err := control.NewServer(daemonBridge{eng: eng}, logger, reload, flagSocket)
	if err != nil {
		return fmt.Errorf("start control server: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	errs := make(chan error, 2)
	go func() {
		errs <- eng.Run(ctx)
	}()
	go func() {
		errs <- ctrlSrv.Serve(ctx)
	}()

	for {
		select {
		case err := <-errs:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("daemon exited: %w", err)
			}
			logger.Infof("daemon stopped")
			return nil
		case reason := <-reloadRequests:
			if err := reload(reason); err != nil {
				logger.Errorf("reload failed: %v", err)
			}
		case sig := <-sigs:
			switch sig {
			case syscall.SIGHUP:
				if err := reload("received SIGHUP"); err != nil {
					logger.Errorf("reload failed: %v", err)
				}
			case os.Interrupt, syscall.SIGTERM:
				logger.Infof("received %s, shutting down", sig)
				cancel()
			}
		}
	}
}

// startConfigWatcher wires an fsnotify watcher for the config file. The
// daemon stays up without one when the file or its directory is missing.
func startConfigWatcher(ctx context.Context, logger *util.Logger, path string, reloadRequests chan<- string) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	target = filepath.Clean(target)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	if err := watcher.Add(target); err != nil {
		logger.Debugf("unable to watch config file directly: %v", err)
	}
	go func() {
		defer watcher.Close()
		<-ctx.Done()
	}()
	go watchConfig(logger, watcher, target, reloadRequests)
	return nil
}

func watchConfig(logger *util.Logger, watcher *fsnotify.Watcher, target string, reloadRequests chan<- string) {
	const debounceWindow = 250 * time.Millisecond
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					<-timerCh
				}
				timer.Reset(debounceWindow)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			select {
			case reloadRequests <- "config file updated":
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("config watcher error: %v", err)
		}
	}
}
