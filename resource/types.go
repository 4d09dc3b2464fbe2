package resource

import "fmt"

// Identity is an opaque token for one native resource instance.
// Identity 0 is reserved and always invalid.
type Identity uint64

// Type tags what kind of native resource an identity refers to.
type Type uint32

const (
	TypeUnknown Type = iota
	TypeDataset
	TypeBand
	TypeLayer
	TypeFeature
	TypeGeometry
)

func (t Type) String() string {
	switch t {
	case TypeDataset:
		return "dataset"
	case TypeBand:
		return "band"
	case TypeLayer:
		return "layer"
	case TypeFeature:
		return "feature"
	case TypeGeometry:
		return "geometry"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// EventType identifies a lifecycle notification.
type EventType uint8

const (
	// EventCreated fires when a node is registered for a new identity.
	EventCreated EventType = iota
	// EventWrapped fires when a wrapper is bound to a node.
	EventWrapped
	// EventReleased fires when a node's wrapper became unreachable or was
	// released explicitly.
	EventReleased
	// EventDestroyed fires after the native destructor ran.
	EventDestroyed
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventWrapped:
		return "wrapped"
	case EventReleased:
		return "released"
	case EventDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Event represents a resource lifecycle event.
type Event struct {
	Handle     Identity
	Parent     Identity
	Generation uint64
	TypeID     Type
	Type       EventType
}

// Observer receives notifications about resource lifecycle events.
// Observers run synchronously on the goroutine that caused the event, which
// may be the runtime's cleanup goroutine; they must not block.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Destructor releases the native resource behind a node. It runs exactly once,
// after every child destructor.
type Destructor func()

// Spec describes a native resource to register.
type Spec struct {
	// Parent is the owning node, or nil for a top-level resource.
	Parent *Node
	// Destroy runs when the node is destroyed. May be nil for resources the
	// native library frees together with their parent.
	Destroy Destructor
	ID      Identity
	// Group is the serialization domain. Children inherit their parent's
	// group when Group is zero.
	Group uint64
	Type  Type
}
