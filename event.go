package accounts

import "github.com/google/uuid"

// An EventKind identifies what an account event does to the collection.
type EventKind int

const (
	// EventKindUnknown is produced when decoding a type tag this version does
	// not recognize. It is never written.
	EventKindUnknown EventKind = iota
	EventKindAdded
	EventKindUpdated
	EventKindDeleted
)

// Wire tags for the known event kinds.
const (
	TagAdded   = "Added"
	TagUpdated = "Updated"
	TagDeleted = "Deleted"
)

func (k EventKind) String() string {
	switch k {
	case EventKindAdded:
		return TagAdded
	case EventKindUpdated:
		return TagUpdated
	case EventKindDeleted:
		return TagDeleted
	default:
		return "Unknown"
	}
}

// ParseEventKind resolves a wire tag. Tags are matched exactly; anything
// else resolves to EventKindUnknown.
func ParseEventKind(tag string) EventKind {
	switch tag {
	case TagAdded:
		return EventKindAdded
	case TagUpdated:
		return EventKindUpdated
	case TagDeleted:
		return EventKindDeleted
	default:
		return EventKindUnknown
	}
}

// An Event is a decoded account event. The set of implementations is closed:
// AccountAdded, AccountUpdated, AccountDeleted and UnrecognizedEvent.
type Event interface {
	Kind() EventKind
	isAccountEvent()
}

// AccountAdded records a new account.
type AccountAdded struct {
	Account Account
}

// AccountUpdated records a changed account.
type AccountUpdated struct {
	Account Account
}

// AccountDeleted records the removal of an account.
type AccountDeleted struct {
	ID uuid.UUID
}

// UnrecognizedEvent is an event whose tag this version does not know.
// It carries the raw tag so it can be reported.
type UnrecognizedEvent struct {
	Tag string
}

func (AccountAdded) Kind() EventKind      { return EventKindAdded }
func (AccountUpdated) Kind() EventKind    { return EventKindUpdated }
func (AccountDeleted) Kind() EventKind    { return EventKindDeleted }
func (UnrecognizedEvent) Kind() EventKind { return EventKindUnknown }

func (AccountAdded) isAccountEvent()      {}
func (AccountUpdated) isAccountEvent()    {}
func (AccountDeleted) isAccountEvent()    {}
func (UnrecognizedEvent) isAccountEvent() {}
