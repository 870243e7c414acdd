// Package engine is the daemon core: it watches manager events, saves a
// workspace snapshot whenever the user rearranges windows, and restores
// the matching snapshot when the window set reappears.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swayback/swayback/internal/ipc"
	"github.com/swayback/swayback/internal/layout"
	"github.com/swayback/swayback/internal/restore"
	"github.com/swayback/swayback/internal/telemetry"
	"github.com/swayback/swayback/internal/util"
)

type managerClient interface {
	Tree(ctx context.Context) (*ipc.Node, error)
	Outputs(ctx context.Context) ([]ipc.Output, error)
	Command(ctx context.Context, text string) error
	CommandFor(ctx context.Context, conID int64, text string) error
	Subscribe(ctx context.Context, logger *util.Logger, kinds ...string) (<-chan ipc.Event, error)
}

type database interface {
	Get(workspace, signature string) (layout.Record, bool, error)
	Put(workspace, signature string, rec layout.Record) error
}

type restorer interface {
	Restore(ctx context.Context, target *layout.Layout) (restore.Result, error)
	CorrectGeometry(ctx context.Context, target *layout.Layout) error
}

// moveToWorkspaceRe picks the destination out of a "move container to
// workspace" binding, quoted or bare.
var moveToWorkspaceRe = regexp.MustCompile(`move container to workspace\s*("([^"]*)"|\w*)`)

// Stats is a point-in-time counter snapshot for the control socket.
type Stats struct {
	Saves    int `json:"saves"`
	Restores int `json:"restores"`
	Failures int `json:"failures"`
}

// Engine ties the manager event stream to the store and the planner.
type Engine struct {
	client  managerClient
	db      database
	planner restorer
	logger  *util.Logger
	metrics *telemetry.Metrics

	mu       sync.Mutex
	triggers []string
	settle   time.Duration
	stats    Stats

	// restoring suppresses snapshotting while the planner's own commands
	// fire binding events.
	restoring atomic.Bool

	sleep func(context.Context, time.Duration)
}

// New builds an engine. Metrics may be nil.
func New(client managerClient, db database, planner restorer, logger *util.Logger, metrics *telemetry.Metrics, triggers []string, settle time.Duration) *Engine {
	return &Engine{
		client:   client,
		db:       db,
		planner:  planner,
		logger:   logger,
		metrics:  metrics,
		triggers: append([]string(nil), triggers...),
		settle:   settle,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// SetTriggerCommands replaces the binding words that cause a snapshot.
func (e *Engine) SetTriggerCommands(triggers []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.triggers = append([]string(nil), triggers...)
}

// SetSettleDelay replaces the post-event settle delay.
func (e *Engine) SetSettleDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settle = d
}

func (e *Engine) triggerCommands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.triggers
}

func (e *Engine) settleDelay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settle
}

// Status returns the current counters.
func (e *Engine) Status() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Engine) countSave() {
	e.mu.Lock()
	e.stats.Saves++
	e.mu.Unlock()
	e.metrics.RecordSave(context.Background())
}

func (e *Engine) countRestore(ctx context.Context, res restore.Result, err error) {
	e.mu.Lock()
	if err != nil {
		e.stats.Failures++
	} else {
		e.stats.Restores++
	}
	e.mu.Unlock()
	outcome := res.State.String()
	if err != nil && res.State == restore.StateSearching {
		outcome = "error"
	}
	e.metrics.RecordRestore(ctx, outcome, res.Iterations)
}

// Run subscribes to window and binding events and serves them until the
// context ends.
func (e *Engine) Run(ctx context.Context) error {
	events, err := e.client.Subscribe(ctx, e.logger, "window", "binding")
	if err != nil {
		return err
	}
	e.logger.Infof("watching window and binding events")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("event stream closed")
			}
			switch ev.Kind {
			case "binding":
				e.handleBinding(ctx, ev.Payload)
			case "window":
				e.handleWindow(ctx, ev.Payload)
			}
		}
	}
}

// handleBinding reacts to keybindings: trigger words snapshot the focused
// workspace, and cross-workspace moves re-arrange both ends.
func (e *Engine) handleBinding(ctx context.Context, payload json.RawMessage) {
	var event struct {
		Binding struct {
			Command string `json:"command"`
		} `json:"binding"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		e.logger.Debugf("undecodable binding event: %v", err)
		return
	}
	command := event.Binding.Command
	// Focus changes fire constantly and never alter the tree.
	if strings.Contains(command, "focus") {
		return
	}
	if !e.isTrigger(command) {
		return
	}
	if e.restoring.Load() {
		e.logger.Tracef("ignoring binding %q during restore", command)
		return
	}

	if m := moveToWorkspaceRe.FindStringSubmatch(command); m != nil {
		dest := m[1]
		if m[2] != "" {
			dest = m[2]
		}
		e.logger.Debugf("container moved to workspace %q", dest)
		if dest != "" {
			e.arrange(ctx, dest)
		}
		e.arrangeFocused(ctx)
		return
	}
	if strings.Contains(command, "move workspace to output") {
		e.arrangeFocused(ctx)
		return
	}
	// The save path does not go through arrange, so it settles here.
	e.sleep(ctx, e.settleDelay())
	if err := e.SaveFocused(ctx); err != nil {
		e.logger.Errorf("snapshot after %q failed: %v", command, err)
	}
}

func (e *Engine) isTrigger(command string) bool {
	for _, trigger := range e.triggerCommands() {
		if strings.Contains(command, trigger) {
			return true
		}
	}
	return false
}

// handleWindow re-arranges the focused workspace when windows appear,
// disappear, or move.
func (e *Engine) handleWindow(ctx context.Context, payload json.RawMessage) {
	var event struct {
		Change string `json:"change"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		e.logger.Debugf("undecodable window event: %v", err)
		return
	}
	switch event.Change {
	case "new", "close", "move":
	default:
		return
	}
	if e.restoring.Load() {
		return
	}
	e.arrangeFocused(ctx)
}

func (e *Engine) arrangeFocused(ctx context.Context) {
	workspace, err := e.focusedWorkspace(ctx)
	if err != nil {
		e.logger.Errorf("focused workspace lookup failed: %v", err)
		return
	}
	if workspace == "" {
		return
	}
	e.arrange(ctx, workspace)
}

func (e *Engine) focusedWorkspace(ctx context.Context) (string, error) {
	root, err := e.client.Tree(ctx)
	if err != nil {
		return "", err
	}
	ws := root.FocusedWorkspace()
	if ws == nil {
		return "", nil
	}
	return ws.Name, nil
}

// arrange captures the workspace and either saves it as the new snapshot
// for its window set, or restores the stored arrangement when one exists.
func (e *Engine) arrange(ctx context.Context, workspace string) {
	e.sleep(ctx, e.settleDelay())
	live, err := layout.FromWorkspace(ctx, e.client, workspace)
	if err != nil {
		e.logger.Errorf("capture workspace %q: %v", workspace, err)
		return
	}
	signature := live.Signature()
	rec, ok, err := e.db.Get(workspace, signature)
	if err != nil {
		e.logger.Errorf("database lookup for workspace %q: %v", workspace, err)
		return
	}
	if !ok {
		e.logger.Debugf("no snapshot for workspace %q signature %s, saving", workspace, signature[:12])
		if err := e.save(live); err != nil {
			e.logger.Errorf("save workspace %q: %v", workspace, err)
		}
		return
	}

	target, err := layout.FromRecord(rec)
	if err != nil {
		e.logger.Errorf("stored snapshot for workspace %q is unusable: %v", workspace, err)
		return
	}
	target.Output = live.Output
	if err := layout.Match(target, live); err != nil {
		var berr *layout.BindingError
		if errors.As(err, &berr) {
			e.logger.Warnf("%v", berr)
			return
		}
		e.logger.Errorf("match workspace %q: %v", workspace, err)
		return
	}
	if layout.EqualPrecise(target, live) {
		e.logger.Tracef("workspace %q already matches its snapshot", workspace)
		return
	}

	focused := e.focusedCon(ctx)

	e.restoring.Store(true)
	defer e.restoring.Store(false)

	e.logger.Infof("restoring workspace %q", workspace)
	res, err := e.planner.Restore(ctx, target)
	e.countRestore(ctx, res, err)
	if err != nil {
		switch {
		case errors.Is(err, restore.ErrExhausted), errors.Is(err, restore.ErrMismatched):
			e.logger.Warnf("restore of workspace %q gave up: %v", workspace, err)
		default:
			e.logger.Errorf("restore workspace %q: %v", workspace, err)
		}
		return
	}
	if err := e.planner.CorrectGeometry(ctx, target); err != nil {
		var lerr *restore.LookupError
		if errors.As(err, &lerr) {
			e.logger.Warnf("geometry pass on workspace %q stopped: %v", workspace, lerr)
		} else {
			e.logger.Errorf("geometry pass on workspace %q: %v", workspace, err)
		}
	}
	if focused != 0 {
		if err := e.client.CommandFor(ctx, focused, "focus"); err != nil {
			e.logger.Debugf("refocus container %d: %v", focused, err)
		}
	}
}

func (e *Engine) focusedCon(ctx context.Context) int64 {
	root, err := e.client.Tree(ctx)
	if err != nil {
		return 0
	}
	if con := root.FindFocused(); con != nil {
		return con.ID
	}
	return 0
}

func (e *Engine) save(live *layout.Layout) error {
	if err := e.db.Put(live.Workspace, live.Signature(), live.Record()); err != nil {
		return err
	}
	e.countSave()
	return nil
}

// SaveFocused snapshots the focused workspace.
func (e *Engine) SaveFocused(ctx context.Context) error {
	return e.Save(ctx, "")
}

// Save snapshots the named workspace, or the focused one when workspace
// is empty.
func (e *Engine) Save(ctx context.Context, workspace string) error {
	if workspace == "" {
		ws, err := e.focusedWorkspace(ctx)
		if err != nil {
			return err
		}
		if ws == "" {
			return fmt.Errorf("no focused workspace")
		}
		workspace = ws
	}
	live, err := layout.FromWorkspace(ctx, e.client, workspace)
	if err != nil {
		return err
	}
	e.logger.Infof("saving workspace %q (%d windows)", workspace, len(live.Tree.Leaves()))
	return e.save(live)
}

// Restore explicitly restores the named workspace, or the focused one
// when workspace is empty.
func (e *Engine) Restore(ctx context.Context, workspace string) error {
	if workspace == "" {
		ws, err := e.focusedWorkspace(ctx)
		if err != nil {
			return err
		}
		if ws == "" {
			return fmt.Errorf("no focused workspace")
		}
		workspace = ws
	}
	live, err := layout.FromWorkspace(ctx, e.client, workspace)
	if err != nil {
		return err
	}
	rec, ok, err := e.db.Get(workspace, live.Signature())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no snapshot for workspace %q with the current windows", workspace)
	}
	target, err := layout.FromRecord(rec)
	if err != nil {
		return err
	}
	target.Output = live.Output
	if err := layout.Match(target, live); err != nil {
		return err
	}

	e.restoring.Store(true)
	defer e.restoring.Store(false)
	res, err := e.planner.Restore(ctx, target)
	e.countRestore(ctx, res, err)
	if err != nil {
		return err
	}
	return e.planner.CorrectGeometry(ctx, target)
}
