// Package commands is the catalog of manager commands the restore
// planner can rank: each command renders to manager command text and can
// predict its own structural effect on a cloned layout.
package commands

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/swayback/swayback/internal/layout"
)

// ErrPrecondition marks a simulation that detected an invalid target
// pair. The planner drops such candidates silently.
var ErrPrecondition = errors.New("structural precondition failed")

// markName tags the destination container during a MoveTo execution.
const markName = "swayback_target"

// Runner executes manager command text, optionally scoped to a container.
type Runner interface {
	Command(ctx context.Context, text string) error
	CommandFor(ctx context.Context, conID int64, text string) error
}

// Command is one simulate-able manager command. Simulate mutates a
// cloned layout to predict the live effect; Execute issues the real
// command sequence.
type Command interface {
	Simulate(l *layout.Layout) error
	Execute(ctx context.Context, run Runner) error
	Target() int64
	String() string
}

type base struct {
	text   string
	target int64
}

func (b base) Target() int64 { return b.target }

func (b base) String() string {
	if b.target != 0 {
		return fmt.Sprintf("[con_id=%d] %s", b.target, b.text)
	}
	return b.text
}

func (b base) Execute(ctx context.Context, run Runner) error {
	if b.target != 0 {
		return run.CommandFor(ctx, b.target, b.text)
	}
	return run.Command(ctx, b.text)
}

func lookup(t *layout.Tree, conID int64) (layout.NodeID, error) {
	id, ok := t.FindByCon(conID)
	if !ok {
		return layout.NoNode, fmt.Errorf("%w: no container with con_id %d", ErrPrecondition, conID)
	}
	return id, nil
}

// MoveTo moves the target container next to (or into) another container.
type MoveTo struct {
	base
	other int64
}

// NewMoveTo builds a MoveTo of target toward other.
func NewMoveTo(target, other int64) *MoveTo {
	return &MoveTo{
		base:  base{text: fmt.Sprintf("move window to mark [con_id=%d]", other), target: target},
		other: other,
	}
}

// Execute marks the destination, moves the target to the mark, and clears
// the mark again: three manager commands.
func (c *MoveTo) Execute(ctx context.Context, run Runner) error {
	if err := run.CommandFor(ctx, c.other, "mark "+markName); err != nil {
		return err
	}
	if err := run.CommandFor(ctx, c.target, "move window to mark "+markName); err != nil {
		return err
	}
	return run.CommandFor(ctx, c.other, "unmark "+markName)
}

func (c *MoveTo) Simulate(l *layout.Layout) error {
	t := l.Tree
	this, err := lookup(t, c.target)
	if err != nil {
		return err
	}
	dest, err := lookup(t, c.other)
	if err != nil {
		return err
	}
	if this == dest || t.HasAncestor(this, dest) || t.HasAncestor(dest, this) {
		return fmt.Errorf("%w: cannot move into a descendant", ErrPrecondition)
	}
	oldParent := t.Node(this).Parent
	t.Detach(this)
	if t.Node(dest).Kind == layout.KindWindow {
		if err := t.AddSibling(dest, this, true); err != nil {
			return err
		}
	} else {
		t.AddChild(dest, this, -1)
	}
	if oldParent != layout.NoNode {
		t.ReapEmpty(oldParent)
	}
	return nil
}

// Swap exchanges the target container with another container.
type Swap struct {
	base
	other int64
}

// NewSwap builds a Swap of target with other.
func NewSwap(target, other int64) *Swap {
	return &Swap{
		base:  base{text: fmt.Sprintf("swap container with con_id %d", other), target: target},
		other: other,
	}
}

func (c *Swap) Simulate(l *layout.Layout) error {
	t := l.Tree
	this, err := lookup(t, c.target)
	if err != nil {
		return err
	}
	other, err := lookup(t, c.other)
	if err != nil {
		return err
	}
	if t.HasAncestor(this, other) || t.HasAncestor(other, this) {
		return fmt.Errorf("%w: cannot swap an ancestor with a descendant", ErrPrecondition)
	}
	thisParent := t.Node(this).Parent
	otherParent := t.Node(other).Parent
	thisAt := childIndex(t, thisParent, this)
	otherAt := childIndex(t, otherParent, other)
	t.Node(thisParent).Children[thisAt] = other
	t.Node(otherParent).Children[otherAt] = this
	t.Node(this).Parent = otherParent
	t.Node(other).Parent = thisParent
	return nil
}

func childIndex(t *layout.Tree, parent, child layout.NodeID) int {
	for i, c := range t.Node(parent).Children {
		if c == child {
			return i
		}
	}
	return -1
}

// Split orientations.
const (
	OrientVertical   = "vertical"
	OrientHorizontal = "horizontal"
	OrientNone       = "none"
)

// Split wraps the target in a new split container, or flattens its parent
// for the none orientation.
type Split struct {
	base
	orientation string
}

// NewSplit builds a Split of target along the given orientation.
func NewSplit(target int64, orientation string) *Split {
	return &Split{
		base:        base{text: "split " + orientation, target: target},
		orientation: orientation,
	}
}

func (c *Split) Simulate(l *layout.Layout) error {
	t := l.Tree
	this, err := lookup(t, c.target)
	if err != nil {
		return err
	}
	if c.orientation == OrientNone {
		parent := t.Node(this).Parent
		if parent == layout.NoNode {
			return fmt.Errorf("%w: cannot flatten above the root", ErrPrecondition)
		}
		t.Flatten(parent)
		return nil
	}
	splitLayout := layout.LayoutSplitH
	if c.orientation == OrientVertical {
		splitLayout = layout.LayoutSplitV
	}
	parent := t.Node(this).Parent
	if parent == layout.NoNode {
		// Splitting the workspace root wraps all of its children one
		// level down.
		t.WrapChildren(this, splitLayout)
		return nil
	}
	if len(t.Node(parent).Children) == 1 {
		// A sole child's split just relabels the parent.
		t.Node(parent).Layout = splitLayout
		return nil
	}
	at := childIndex(t, parent, this)
	t.Detach(this)
	wrapper := t.NewSplit(splitLayout)
	t.AddChild(parent, wrapper, at)
	t.AddChild(wrapper, this, -1)
	return nil
}

// SetLayout changes the layout of the target's parent container.
type SetLayout struct {
	base
	layoutValue string
}

// NewSetLayout builds a layout change for the container holding target.
func NewSetLayout(target int64, layoutValue string) *SetLayout {
	return &SetLayout{
		base:        base{text: "layout " + layoutValue, target: target},
		layoutValue: layoutValue,
	}
}

func (c *SetLayout) Simulate(l *layout.Layout) error {
	t := l.Tree
	this, err := lookup(t, c.target)
	if err != nil {
		return err
	}
	// The manager applies layout changes to the enclosing container.
	if parent := t.Node(this).Parent; parent != layout.NoNode {
		this = parent
	}
	n := t.Node(this)
	if n.Layout == c.layoutValue {
		return nil
	}
	if n.Parent != layout.NoNode {
		n.Layout = c.layoutValue
		return nil
	}
	// Relabeling the workspace root instead nests its children in a split
	// that keeps the old layout, so the existing arrangement survives.
	t.WrapChildren(this, n.Layout)
	t.Node(this).Layout = c.layoutValue
	return nil
}

// Move shifts the target one position in a direction, re-orienting the
// workspace root when no parallel ancestor exists.
type Move struct {
	base
	direction string
}

// NewMove builds a directional move of target.
func NewMove(target int64, direction string) *Move {
	return &Move{
		base:      base{text: "move " + direction, target: target},
		direction: direction,
	}
}

func (c *Move) Simulate(l *layout.Layout) error {
	t := l.Tree
	this, err := lookup(t, c.target)
	if err != nil {
		return err
	}
	// Degraded move cases leave the tree untouched; the candidate then
	// scores no better than the current state and is never ranked.
	t.Move(this, c.direction)
	return nil
}

// Resize sets a container's pixel size. It is never simulated: the
// geometry corrector issues it directly against the live manager.
type Resize struct {
	base
}

// NewResize builds a resize to the recorded rectangle.
func NewResize(target int64, rect layout.Rect) (*Resize, error) {
	if rect.Width < 0 || rect.Height < 0 {
		return nil, fmt.Errorf("resize rectangle must be non-negative, got %gx%g", rect.Width, rect.Height)
	}
	if rect.Percent != nil && (*rect.Percent < 0 || *rect.Percent > 1) {
		return nil, fmt.Errorf("resize percent must be within [0, 1], got %g", *rect.Percent)
	}
	text := fmt.Sprintf("resize set %d px %d px",
		int(math.Round(rect.Width)), int(math.Round(rect.Height)))
	return &Resize{base: base{text: text, target: target}}, nil
}

func (c *Resize) Simulate(*layout.Layout) error { return nil }

// Candidates enumerates every command worth simulating for one node of a
// live tree: the four layout values, swap and move-to against every
// unrelated node, the three split orientations, and the four move
// directions. The root generates nothing.
func Candidates(t *layout.Tree, id layout.NodeID) []Command {
	node := t.Node(id)
	if node.Parent == layout.NoNode {
		return nil
	}
	var out []Command
	for _, value := range []string{layout.LayoutSplitV, layout.LayoutSplitH, layout.LayoutStacked, layout.LayoutTabbed} {
		out = append(out, NewSetLayout(node.ConID, value))
	}
	for _, other := range t.Nodes() {
		if other == id || t.HasAncestor(id, other) || t.HasAncestor(other, id) {
			continue
		}
		out = append(out, NewSwap(node.ConID, t.Node(other).ConID))
		out = append(out, NewMoveTo(node.ConID, t.Node(other).ConID))
	}
	for _, orientation := range []string{OrientVertical, OrientHorizontal, OrientNone} {
		out = append(out, NewSplit(node.ConID, orientation))
	}
	for _, direction := range []string{layout.DirUp, layout.DirDown, layout.DirLeft, layout.DirRight} {
		out = append(out, NewMove(node.ConID, direction))
	}
	return out
}

// Dedup drops commands whose rendered text and target duplicate an
// earlier entry, preserving order.
func Dedup(cmds []Command) []Command {
	seen := make(map[string]struct{}, len(cmds))
	out := cmds[:0]
	for _, cmd := range cmds {
		key := cmd.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, cmd)
	}
	return out
}
