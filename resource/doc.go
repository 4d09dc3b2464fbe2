// Package resource maps native resource identities to Go wrapper objects and
// decides when a native resource may be destroyed.
//
// # Handle Registry
//
// Every native object the library hands out is identified by an [Identity],
// usually its native pointer value. [Resolve] returns the live wrapper for an
// identity, or builds and registers one:
//
//	band, err := resource.Resolve(reg, resource.Spec{
//	    ID:     resource.Identity(ptr),
//	    Type:   resource.TypeBand,
//	    Parent: datasetNode,
//	}, func(n *resource.Node) *Band { return &Band{node: n} })
//
// While the native object stays alive, every call for the same identity
// returns the same wrapper. This is the single point where "same native
// pointer, same object" is enforced; two wrappers for one identity could both
// try to free it.
//
// # Ownership Graph
//
// A [Node] holds a strong reference to its parent node and weak back
// references to its children. The wrapper itself is only referenced weakly by
// the registry, so the Go collector decides when it is unreachable. Each
// wrapper gets a cleanup registered with [runtime.AddCleanup]; when it fires,
// the node is offered for release:
//
//   - a node with no live children is destroyed at once (eager child release)
//   - a node with live children stays alive until its last child is
//     destroyed, then it is destroyed in cascade (deferred parent release)
//
// A parent wrapper object may be collected while its children live; only the
// parent's node survives. Resolving the parent identity again in that window
// builds a fresh wrapper on the same node.
//
// [Registry.MarkDestroyed] destroys a node and all of its live descendants,
// leaves first, regardless of wrapper reachability. It is used when the caller
// closes a resource explicitly.
//
// # Observers
//
// Register observers to track lifecycle events:
//
//	reg.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    if e.Type == resource.EventDestroyed {
//	        log.Printf("%s#%d destroyed", e.TypeID, e.Handle)
//	    }
//	}))
package resource
