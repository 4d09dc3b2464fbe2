package resource

import (
	"fmt"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/wippyai/gdal-async/errors"
)

// Node is the registry's record of one native resource. Wrappers hold their
// node strongly; the node holds its parent strongly and its wrapper and
// children weakly.
type Node struct {
	parent *Node
	reg    *Registry

	wrapper  any // weak.Pointer[T] of the current wrapper
	destroy  Destructor
	children map[Identity]weak.Pointer[Node]

	id    Identity
	group uint64
	gen   uint64

	mu           sync.Mutex
	liveChildren int
	typ          Type
	alive        atomic.Bool
	released     bool
	closing      bool
}

func newNode(r *Registry, spec Spec) *Node {
	n := &Node{
		reg:     r,
		parent:  spec.Parent,
		id:      spec.ID,
		typ:     spec.Type,
		group:   spec.Group,
		destroy: spec.Destroy,
	}
	if n.group == 0 && spec.Parent != nil {
		n.group = spec.Parent.Group()
	}
	n.alive.Store(true)
	return n
}

// ID returns the native identity.
func (n *Node) ID() Identity { return n.id }

// Type returns the resource type.
func (n *Node) Type() Type { return n.typ }

// Group returns the id of the serialization domain the node belongs to.
// Attach may still set it on a node created without one.
func (n *Node) Group() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.group
}

// Parent returns the owning node, or nil for a top-level resource.
func (n *Node) Parent() *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.parent
}

// Alive reports whether the native resource may still be dereferenced.
func (n *Node) Alive() bool { return n.alive.Load() }

// Released reports whether the node's current wrapper has been released.
func (n *Node) Released() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.released
}

// Generation counts the wrappers that have been bound to this node.
func (n *Node) Generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gen
}

// LiveChildren returns the number of attached children not yet destroyed.
func (n *Node) LiveChildren() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.liveChildren
}

// Check returns an already-destroyed error if the node is dead. It is cheap
// and never blocks on a resource group.
func (n *Node) Check(op string) error {
	if n == nil {
		return errors.InvalidInput(errors.PhaseRegistry, op, "nil resource")
	}
	if !n.alive.Load() {
		return errors.Destroyed(errors.PhaseRegistry, n.String(), op)
	}
	return nil
}

func (n *Node) String() string {
	return fmt.Sprintf("%s#%d", n.typ, n.id)
}
