package resource

import (
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/gdal-async/errors"
)

const (
	// shardCount must be a power of 2 for fast selection via bitwise AND.
	shardCount = 16
	shardMask  = shardCount - 1
)

// Registry is the handle registry and ownership graph. It is safe for
// concurrent use; lookups for unrelated identities rarely share a lock.
type Registry struct {
	shards    [shardCount]shard
	observers []subscription
	obsMu     sync.RWMutex
	nextSub   uint64

	created   atomic.Int64
	destroyed atomic.Int64
	closed    atomic.Bool
}

type subscription struct {
	obs Observer
	id  uint64
}

type shard struct {
	mu    sync.RWMutex
	nodes map[Identity]*Node
}

// ticket is the argument of a wrapper cleanup. It never references the
// wrapper itself.
type ticket struct {
	node *Node
	gen  uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].nodes = make(map[Identity]*Node)
	}
	return r
}

// shardFor spreads sequential identities across shards (Fibonacci hashing).
func (r *Registry) shardFor(id Identity) *shard {
	h := uint64(id) * 0x9E3779B97F4A7C15
	return &r.shards[(h>>32)&shardMask]
}

// Resolve returns the live wrapper registered for spec.ID, or builds one with
// build and registers it. Wrappers built here get a cleanup that offers their
// node for release once the wrapper is unreachable.
//
// Resolve fails with KindTypeMismatch if the identity is registered under a
// different Type or wrapper type, and with KindDestroyed if spec.Parent is
// dead.
func Resolve[T any](r *Registry, spec Spec, build func(*Node) *T) (*T, error) {
	if spec.ID == 0 {
		return nil, errors.InvalidInput(errors.PhaseRegistry, "resolve", "identity 0 is reserved")
	}
	if r.closed.Load() {
		return nil, errors.Closed(errors.PhaseRegistry, "registry")
	}

	n, created := r.lookupOrCreate(spec)
	if created {
		if spec.Parent != nil {
			if err := r.link(n, spec.Parent); err != nil {
				r.forget(n)
				return nil, err
			}
		}
		r.created.Add(1)
		r.notify(n, EventCreated)
	}

	if n.typ != spec.Type {
		return nil, errors.TypeMismatch(n.String(), spec.Type.String(), n.typ.String())
	}

	return bind(r, n, build)
}

// Wrap returns the live wrapper of n, building a new one if the previous
// wrapper was collected. Unlike Resolve it never creates a node: a dead n
// fails with KindDestroyed.
func Wrap[T any](r *Registry, n *Node, build func(*Node) *T) (*T, error) {
	if n == nil {
		return nil, errors.InvalidInput(errors.PhaseRegistry, "wrap", "nil node")
	}
	return bind(r, n, build)
}

func bind[T any](r *Registry, n *Node, build func(*Node) *T) (*T, error) {
	n.mu.Lock()
	if !n.alive.Load() {
		n.mu.Unlock()
		return nil, errors.Destroyed(errors.PhaseRegistry, n.String(), "resolve")
	}
	if n.wrapper != nil {
		wp, ok := n.wrapper.(weak.Pointer[T])
		if !ok {
			n.mu.Unlock()
			var zero T
			return nil, errors.TypeMismatch(n.String(), typeName(&zero), typeName(n.wrapper))
		}
		if w := wp.Value(); w != nil {
			n.mu.Unlock()
			return w, nil
		}
	}

	w := build(n)
	n.gen++
	n.released = false
	n.wrapper = weak.Make(w)
	gen := n.gen
	n.mu.Unlock()

	runtime.AddCleanup(w, r.onUnreachable, ticket{node: n, gen: gen})
	r.notifyGen(n, EventWrapped, gen)
	return w, nil
}

func (r *Registry) lookupOrCreate(spec Spec) (*Node, bool) {
	s := r.shardFor(spec.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.nodes[spec.ID]; ok && n.alive.Load() {
		return n, false
	}
	// Unknown identity, or the native library reused the identity of a
	// destroyed resource.
	n := newNode(r, spec)
	s.nodes[spec.ID] = n
	return n, true
}

// forget drops a node that never became reachable.
func (r *Registry) forget(n *Node) {
	n.alive.Store(false)
	s := r.shardFor(n.id)
	s.mu.Lock()
	if s.nodes[n.id] == n {
		delete(s.nodes, n.id)
	}
	s.mu.Unlock()
}

// Lookup returns the live node for id, or nil.
func (r *Registry) Lookup(id Identity) *Node {
	s := r.shardFor(id)
	s.mu.RLock()
	n := s.nodes[id]
	s.mu.RUnlock()
	if n == nil || !n.alive.Load() {
		return nil
	}
	return n
}

// IsAlive reports whether id refers to a live native resource.
func (r *Registry) IsAlive(id Identity) bool {
	return r.Lookup(id) != nil
}

// MarkDestroyed destroys the node for id and every live descendant, leaves
// first. It is idempotent and reports whether anything was destroyed.
func (r *Registry) MarkDestroyed(id Identity) bool {
	n := r.Lookup(id)
	if n == nil {
		return false
	}
	r.markDestroyed(n)
	return true
}

// Destroy is MarkDestroyed for a node the caller already holds.
func (r *Registry) Destroy(n *Node) {
	if n != nil {
		r.markDestroyed(n)
	}
}

func (r *Registry) markDestroyed(n *Node) {
	n.mu.Lock()
	n.closing = true
	kids := n.snapshotChildrenLocked()
	n.mu.Unlock()

	for _, c := range kids {
		r.markDestroyed(c)
	}
	r.destroy(n)
}

// ReleaseCandidate offers n for release as if its current wrapper had become
// unreachable. The native resource is destroyed now if n has no live
// children, otherwise when the last one is destroyed.
func (r *Registry) ReleaseCandidate(n *Node) {
	if n == nil {
		return
	}
	r.release(n, 0, false)
}

// onUnreachable is the cleanup registered on every wrapper.
func (r *Registry) onUnreachable(t ticket) {
	r.release(t.node, t.gen, true)
}

func (r *Registry) release(n *Node, gen uint64, checkGen bool) {
	n.mu.Lock()
	if n.released || (checkGen && n.gen != gen) {
		// A newer wrapper owns the node now.
		n.mu.Unlock()
		return
	}
	n.released = true
	n.wrapper = nil
	destroyNow := n.liveChildren == 0
	cur := n.gen
	n.mu.Unlock()

	r.notifyGen(n, EventReleased, cur)
	if destroyNow {
		r.destroy(n)
	}
}

// destroy runs the native destructor once and detaches n from its parent,
// which may cascade into destroying a released parent.
func (r *Registry) destroy(n *Node) {
	if !n.alive.CompareAndSwap(true, false) {
		return
	}

	s := r.shardFor(n.id)
	s.mu.Lock()
	if s.nodes[n.id] == n {
		delete(s.nodes, n.id)
	}
	s.mu.Unlock()

	n.mu.Lock()
	d := n.destroy
	n.destroy = nil
	n.mu.Unlock()

	if d != nil {
		r.runDestructor(n, d)
	}
	r.destroyed.Add(1)
	r.notify(n, EventDestroyed)

	if p := n.Parent(); p != nil {
		r.detach(n, p)
	}
}

func (r *Registry) runDestructor(n *Node, d Destructor) {
	defer func() {
		if rec := recover(); rec != nil {
			Logger().Error("native destructor panicked",
				zap.String("resource", n.String()),
				zap.Any("panic", rec))
		}
	}()
	d()
}

// Len returns the number of live nodes.
func (r *Registry) Len() int {
	total := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		total += len(s.nodes)
		s.mu.RUnlock()
	}
	return total
}

// Stats returns the number of nodes created and destroyed so far.
func (r *Registry) Stats() (created, destroyed int64) {
	return r.created.Load(), r.destroyed.Load()
}

// Each calls fn for every live node until fn returns false.
func (r *Registry) Each(fn func(*Node) bool) {
	for _, n := range r.snapshot() {
		if !fn(n) {
			return
		}
	}
}

func (r *Registry) snapshot() []*Node {
	var nodes []*Node
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, n := range s.nodes {
			nodes = append(nodes, n)
		}
		s.mu.RUnlock()
	}
	return nodes
}

// Close destroys every live top-level resource with its descendants and
// stops accepting new registrations.
func (r *Registry) Close() {
	r.closed.Store(true)
	for _, n := range r.snapshot() {
		if n.Parent() == nil {
			r.markDestroyed(n)
		}
	}
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it.
func (r *Registry) Subscribe(o Observer) (unsubscribe func()) {
	r.obsMu.Lock()
	r.nextSub++
	id := r.nextSub
	r.observers = append(r.observers, subscription{obs: o, id: id})
	r.obsMu.Unlock()

	return func() {
		r.obsMu.Lock()
		defer r.obsMu.Unlock()
		for i, sub := range r.observers {
			if sub.id == id {
				r.observers = append(r.observers[:i:i], r.observers[i+1:]...)
				return
			}
		}
	}
}

func (r *Registry) notify(n *Node, t EventType) {
	r.notifyGen(n, t, 0)
}

func (r *Registry) notifyGen(n *Node, t EventType, gen uint64) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	if len(r.observers) == 0 {
		return
	}
	e := Event{
		Type:       t,
		Handle:     n.id,
		TypeID:     n.typ,
		Generation: gen,
	}
	if p := n.Parent(); p != nil {
		e.Parent = p.id
	}
	for _, sub := range r.observers {
		sub.obs.OnResourceEvent(e)
	}
}
