package resource

import (
	"weak"

	"github.com/wippyai/gdal-async/errors"
)

// Attach records the keep-alive edge child→parent and the diagnostic weak
// edge parent→child. Resolve attaches automatically when Spec.Parent is set.
func (r *Registry) Attach(child, parent *Node) error {
	if child == nil || parent == nil {
		return errors.InvalidInput(errors.PhaseGraph, "attach", "nil node")
	}
	if child == parent {
		return errors.InvalidInput(errors.PhaseGraph, "attach", "node cannot own itself")
	}

	group := parent.Group()
	child.mu.Lock()
	if child.parent != nil {
		child.mu.Unlock()
		return errors.New(errors.PhaseGraph, errors.KindInvalidInput).
			Resource(child.String()).
			Op("attach").
			Detail("already owned by %s", child.parent).
			Build()
	}
	child.parent = parent
	if child.group == 0 {
		child.group = group
	}
	child.mu.Unlock()

	if err := r.link(child, parent); err != nil {
		child.mu.Lock()
		child.parent = nil
		child.mu.Unlock()
		return err
	}
	return nil
}

// link adds child to parent's children. It fails if the parent is dead or
// being destroyed, so no child can appear under a node mid-teardown.
func (r *Registry) link(child, parent *Node) error {
	parent.mu.Lock()
	defer parent.mu.Unlock()
	if !parent.alive.Load() || parent.closing {
		return errors.Destroyed(errors.PhaseGraph, parent.String(), "attach")
	}
	if parent.children == nil {
		parent.children = make(map[Identity]weak.Pointer[Node])
	}
	parent.children[child.id] = weak.Make(child)
	parent.liveChildren++
	return nil
}

// detach drops a destroyed child from its parent and destroys the parent if
// its wrapper was already released and this was its last live child.
func (r *Registry) detach(child, parent *Node) {
	parent.mu.Lock()
	if _, ok := parent.children[child.id]; !ok {
		parent.mu.Unlock()
		return
	}
	delete(parent.children, child.id)
	parent.liveChildren--
	cascade := parent.released && parent.liveChildren == 0
	parent.mu.Unlock()

	if cascade {
		r.destroy(parent)
	}
}

// Children returns the live children of n. The result is a diagnostic
// snapshot; children may die right after it is taken.
func (r *Registry) Children(n *Node) []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.snapshotChildrenLocked()
}

func (n *Node) snapshotChildrenLocked() []*Node {
	if len(n.children) == 0 {
		return nil
	}
	kids := make([]*Node, 0, len(n.children))
	for _, wp := range n.children {
		if c := wp.Value(); c != nil && c.alive.Load() {
			kids = append(kids, c)
		}
	}
	return kids
}
