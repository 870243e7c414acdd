// Package restore turns a bound target layout into a sequence of manager
// commands. The planner is a greedy best-first search: every applicable
// command is simulated against a clone of the live layout, scored, and
// the best improvement executed, until the live tree matches the target
// precisely or a budget runs out.
package restore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/swayback/swayback/internal/commands"
	"github.com/swayback/swayback/internal/ipc"
	"github.com/swayback/swayback/internal/layout"
	"github.com/swayback/swayback/internal/util"
)

var tracer = otel.Tracer("swayback/restore")

// Client is the slice of the manager client the planner needs.
type Client interface {
	Tree(ctx context.Context) (*ipc.Node, error)
	Outputs(ctx context.Context) ([]ipc.Output, error)
	Command(ctx context.Context, text string) error
	CommandFor(ctx context.Context, conID int64, text string) error
}

// State is the planner's terminal condition.
type State int

const (
	// StateSearching is the in-flight state, never returned.
	StateSearching State = iota
	// StateConverged means the live tree matches the target precisely.
	StateConverged
	// StateExhausted means the command budget ran out first.
	StateExhausted
	// StateMismatched means no candidate improved on the current layout.
	StateMismatched
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateConverged:
		return "converged"
	case StateExhausted:
		return "exhausted"
	case StateMismatched:
		return "mismatched"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrExhausted is returned when the command budget runs out before
	// convergence.
	ErrExhausted = errors.New("command budget exhausted before convergence")
	// ErrMismatched is returned when no applicable command improves the
	// layout.
	ErrMismatched = errors.New("no applicable command improves the layout")
)

// LookupError reports that a container bound during planning disappeared
// from the live tree.
type LookupError struct {
	ConID int64
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("container %d not found in the live tree", e.ConID)
}

// Options tune the search.
type Options struct {
	// Budget caps the number of executed commands per restore.
	Budget int
	// ImprovingLimit stops candidate evaluation once this many improving
	// candidates are known.
	ImprovingLimit int
	// Tolerance is the relative size slack the geometry pass accepts.
	Tolerance float64
	// Workers bounds concurrent candidate simulations.
	Workers int
}

func (o Options) withDefaults() Options {
	if o.Budget <= 0 {
		o.Budget = 50
	}
	if o.ImprovingLimit <= 0 {
		o.ImprovingLimit = 15
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 0.1
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
		if o.Workers > 8 {
			o.Workers = 8
		}
	}
	return o
}

// Result summarizes one restore run.
type Result struct {
	State      State
	Iterations int
	Similarity float64
}

// Planner drives restores against one manager connection.
type Planner struct {
	client Client
	log    *util.Logger
	opts   Options
}

// NewPlanner returns a planner using client for captures and command
// execution.
func NewPlanner(client Client, logger *util.Logger, opts Options) *Planner {
	return &Planner{client: client, log: logger, opts: opts.withDefaults()}
}

type ranked struct {
	cmd     commands.Command
	outcome *layout.Layout
	score   float64
	count   int
	err     error
}

// Restore drives the live workspace toward the target layout. The target
// must be fully bound. On ErrExhausted and ErrMismatched the live tree is
// left in the closest state reached; the caller decides whether to keep
// it.
func (p *Planner) Restore(ctx context.Context, target *layout.Layout) (Result, error) {
	ctx, span := tracer.Start(ctx, "restore",
		trace.WithAttributes(attribute.String("workspace", target.Workspace)))
	defer span.End()

	res, err := p.restore(ctx, target)
	span.SetAttributes(
		attribute.String("restore.outcome", res.State.String()),
		attribute.Int("restore.iterations", res.Iterations),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (p *Planner) restore(ctx context.Context, target *layout.Layout) (Result, error) {
	for _, id := range target.Tree.Leaves() {
		if target.Tree.Node(id).ConID == 0 {
			return Result{}, fmt.Errorf("target leaf %s is unbound", target.Tree.Describe(id))
		}
	}

	var predicted *layout.Layout
	executed := 0
	for {
		live, err := layout.FromWorkspace(ctx, p.client, target.Workspace)
		if err != nil {
			return Result{State: StateSearching, Iterations: executed}, err
		}
		if predicted != nil && !layout.EqualPrecise(predicted, live) {
			p.log.Warnf("live layout diverged from the simulated outcome on workspace %q", target.Workspace)
			p.log.Debugf("live layout now:\n%s", live)
		}

		similarity := layout.Compare(target, live)
		if layout.EqualPrecise(target, live) {
			p.log.Infof("workspace %q converged after %d commands", target.Workspace, executed)
			return Result{State: StateConverged, Iterations: executed, Similarity: similarity}, nil
		}
		if executed >= p.opts.Budget {
			return Result{State: StateExhausted, Iterations: executed, Similarity: similarity},
				fmt.Errorf("workspace %q: %w", target.Workspace, ErrExhausted)
		}

		best, err := p.pick(ctx, target, live, similarity)
		if err != nil {
			return Result{State: StateMismatched, Iterations: executed, Similarity: similarity},
				fmt.Errorf("workspace %q: %w", target.Workspace, err)
		}
		p.log.Debugf("executing %q (score %.3f -> %.3f)", best.cmd, similarity, best.score)
		if err := best.cmd.Execute(ctx, p.client); err != nil {
			return Result{State: StateSearching, Iterations: executed},
				fmt.Errorf("execute %q: %w", best.cmd, err)
		}
		executed++
		predicted = best.outcome
	}
}

// pick simulates every applicable command against the live layout and
// returns the most promising one: the biggest score improvement, or the
// equal-scoring candidate shedding the most containers.
func (p *Planner) pick(ctx context.Context, target, live *layout.Layout, similarity float64) (ranked, error) {
	var pool []commands.Command
	for _, id := range live.Tree.Nodes() {
		pool = append(pool, commands.Candidates(live.Tree, id)...)
	}
	pool = commands.Dedup(pool)
	p.log.Tracef("ranking %d candidate commands", len(pool))

	liveCount := live.Tree.Count()
	var improving, fallback []ranked
scan:
	for start := 0; start < len(pool); start += p.opts.Workers {
		end := start + p.opts.Workers
		if end > len(pool) {
			end = len(pool)
		}
		chunk := make([]ranked, end-start)
		var wg sync.WaitGroup
		for i, cmd := range pool[start:end] {
			wg.Add(1)
			go func(i int, cmd commands.Command) {
				defer wg.Done()
				outcome := live.Clone()
				if err := cmd.Simulate(outcome); err != nil {
					chunk[i] = ranked{cmd: cmd, err: err}
					return
				}
				chunk[i] = ranked{
					cmd:     cmd,
					outcome: outcome,
					score:   layout.Compare(target, outcome),
					count:   outcome.Tree.Count(),
				}
			}(i, cmd)
		}
		wg.Wait()

		// Merge in pool order and cut off at the improving limit so the
		// collected set is the same sequential prefix of the pool no
		// matter how wide the simulation chunks are.
		for _, r := range chunk {
			if r.err != nil {
				if !errors.Is(r.err, commands.ErrPrecondition) {
					p.log.Debugf("dropping %q: %v", r.cmd, r.err)
				}
				continue
			}
			switch {
			case r.score > similarity:
				improving = append(improving, r)
				if len(improving) >= p.opts.ImprovingLimit {
					break scan
				}
			case r.score == similarity && r.count < liveCount:
				fallback = append(fallback, r)
			}
		}
	}

	if len(improving) > 0 {
		sort.SliceStable(improving, func(i, j int) bool { return improving[i].score > improving[j].score })
		return improving[0], nil
	}
	if len(fallback) > 0 {
		// Shedding containers cannot raise the score but unblocks the
		// next round.
		sort.SliceStable(fallback, func(i, j int) bool { return fallback[i].count < fallback[j].count })
		return fallback[0], nil
	}
	return ranked{}, ErrMismatched
}
