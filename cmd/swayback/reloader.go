package main

import (
	"fmt"
	"os"
	"time"

	"github.com/swayback/swayback/internal/config"
	"github.com/swayback/swayback/internal/util"
)

// reloadTarget is the slice of the engine a config reload adjusts.
// Planner knobs (budget, tolerance) are fixed at startup.
type reloadTarget interface {
	SetTriggerCommands([]string)
	SetSettleDelay(time.Duration)
}

type configReloader struct {
	path           string
	logger         *util.Logger
	engine         reloadTarget
	lastSerialized []byte
}

func newConfigReloader(path string, logger *util.Logger, engine reloadTarget) *configReloader {
	serialized, err := os.ReadFile(path)
	if err != nil {
		serialized = nil
	}
	return &configReloader{
		path:           path,
		logger:         logger,
		engine:         engine,
		lastSerialized: serialized,
	}
}

// Reload re-reads the config file and applies the hot-reloadable fields.
// A config that fails validation is rejected and the previous one stays
// in force, with a diff against the last valid file in the log.
func (r *configReloader) Reload(reason string) error {
	r.logger.Infof("%s, reloading config", reason)
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg, err := config.Load(r.path)
	if err != nil {
		r.logDiff(raw)
		return err
	}

	r.engine.SetTriggerCommands(cfg.TriggerCommands)
	r.engine.SetSettleDelay(time.Duration(cfg.SettleDelayMs) * time.Millisecond)
	if flagLogLevel == "" {
		r.logger.SetLevel(util.ParseLogLevel(cfg.LogLevel))
	}

	r.lastSerialized = append([]byte(nil), raw...)
	r.logger.Infof("config reloaded (%d trigger commands, settle %dms)",
		len(cfg.TriggerCommands), cfg.SettleDelayMs)
	return nil
}

func (r *configReloader) logDiff(current []byte) {
	diff := config.DiffSerialized(r.lastSerialized, current)
	if diff == "" {
		r.logger.Warnf("config change rejected; unable to compute diff vs last valid config")
		return
	}
	r.logger.Warnf("config change rejected; diff vs last valid config:\n%s", diff)
}
