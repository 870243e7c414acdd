package restore

import (
	"context"
	"fmt"
	"math"

	"github.com/swayback/swayback/internal/commands"
	"github.com/swayback/swayback/internal/layout"
)

// CorrectGeometry resizes the live containers of a converged layout to
// the recorded sizes. For each leaf it resizes the window itself, then
// ascends through the recorded ancestors that carry a percent share,
// re-binding each to its live counterpart as it goes. The ascent follows
// the resizing scheme sway uses for percent-based layout loads.
func (p *Planner) CorrectGeometry(ctx context.Context, target *layout.Layout) error {
	for _, leafID := range target.Tree.Leaves() {
		if err := p.correctLeaf(ctx, target.Tree, leafID); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) correctLeaf(ctx context.Context, t *layout.Tree, leafID layout.NodeID) error {
	leaf := t.Node(leafID)
	root, err := p.client.Tree(ctx)
	if err != nil {
		return err
	}
	con := root.FindByID(leaf.ConID)
	if con == nil {
		return &LookupError{ConID: leaf.ConID}
	}
	if err := p.resizeIfNeeded(ctx, leaf.ConID, con.Rect.Width, con.Rect.Height, leaf.Rect); err != nil {
		return err
	}

	// Bind the enclosing container and walk up while the record says the
	// ancestor held a share of its parent. Every level re-queries the
	// tree: the resize below may have rearranged sizes above.
	if parent := root.FindParentOf(leaf.ConID); parent != nil && leaf.Parent != layout.NoNode {
		t.Node(leaf.Parent).ConID = parent.ID
	}
	for cur := leaf.Parent; cur != layout.NoNode; cur = t.Node(cur).Parent {
		n := t.Node(cur)
		if n.Rect.Percent == nil || n.ConID == 0 {
			break
		}
		root, err := p.client.Tree(ctx)
		if err != nil {
			return err
		}
		con := root.FindByID(n.ConID)
		if con == nil {
			return &LookupError{ConID: n.ConID}
		}
		if err := p.resizeIfNeeded(ctx, n.ConID, con.Rect.Width, con.Rect.Height, n.Rect); err != nil {
			return err
		}
		if grand := root.FindParentOf(n.ConID); grand != nil && n.Parent != layout.NoNode {
			t.Node(n.Parent).ConID = grand.ID
		}
	}
	return nil
}

func (p *Planner) resizeIfNeeded(ctx context.Context, conID int64, liveW, liveH float64, want layout.Rect) error {
	if p.closeEnough(liveW, want.Width) && p.closeEnough(liveH, want.Height) {
		return nil
	}
	cmd, err := commands.NewResize(conID, want)
	if err != nil {
		return fmt.Errorf("container %d: %w", conID, err)
	}
	p.log.Debugf("resizing container %d from %.0fx%.0f to %.0fx%.0f",
		conID, liveW, liveH, want.Width, want.Height)
	return cmd.Execute(ctx, p.client)
}

// closeEnough allows a relative slack so converged layouts are not
// nudged by a few pixels, which looks glitchy.
func (p *Planner) closeEnough(live, want float64) bool {
	limit := p.opts.Tolerance * math.Max(1, math.Abs(want))
	return math.Abs(live-want) <= limit
}
