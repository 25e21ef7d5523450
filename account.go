package accounts

import (
	"maps"

	"github.com/google/uuid"
)

// An Account is a single record in the account collection.
type Account struct {
	ID         uuid.UUID         `json:"id"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Equal reports whether a and other hold the same values in every field.
// A nil and an empty attribute map are equal.
func (a Account) Equal(other Account) bool {
	return a.ID == other.ID &&
		a.Name == other.Name &&
		maps.Equal(a.Attributes, other.Attributes)
}

// Clone returns a copy of a that shares no mutable state with it.
func (a Account) Clone() Account {
	a.Attributes = maps.Clone(a.Attributes)
	return a
}
