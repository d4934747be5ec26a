package handle

import "fmt"

// Kind tags the native entity behind a Handle.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindModule
	KindInstance
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindInstance:
		return "instance"
	case KindFunction:
		return "function"
	default:
		return "invalid"
	}
}

// Handle is an opaque, generation-checked reference to an entry in a Table.
// The zero Handle is never valid.
type Handle struct {
	owner uint32
	slot  uint32
	gen   uint32
	kind  Kind
}

// Kind returns the handle's kind tag.
func (h Handle) Kind() Kind {
	return h.kind
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.slot == 0
}

func (h Handle) String() string {
	if h.IsZero() {
		return "<nil handle>"
	}
	return fmt.Sprintf("%s#%d.%d", h.kind, h.slot, h.gen)
}

// EventType identifies a lifecycle transition.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
	EventBorrowed
	EventBorrowReturned
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventReleased:
		return "released"
	case EventBorrowed:
		return "borrowed"
	case EventBorrowReturned:
		return "borrow_returned"
	default:
		return "unknown"
	}
}

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Parent Handle
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnHandleEvent(e Event) {
	f(e)
}
