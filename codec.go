package accounts

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

// A Codec encodes and decodes event payloads: whole accounts for Added and
// Updated events, bare account IDs for Deleted events.
type Codec interface {
	EncodeAccount(account Account) ([]byte, error)
	DecodeAccount(data []byte) (Account, error)
	EncodeID(id uuid.UUID) ([]byte, error)
	DecodeID(data []byte) (uuid.UUID, error)
}

// JSONCodec is the default Codec. Accounts are encoded as JSON objects and
// IDs as JSON strings.
type JSONCodec struct {
	accounts Marshaler[Account, *Account]
	ids      Marshaler[uuid.UUID, *uuid.UUID]
}

var _ Codec = JSONCodec{}

// NewJSONCodec creates a JSONCodec.
func NewJSONCodec() JSONCodec {
	return JSONCodec{
		accounts: JSONMarshaler[Account]{},
		ids:      JSONMarshaler[uuid.UUID]{},
	}
}

func (c JSONCodec) EncodeAccount(account Account) ([]byte, error) {
	if account.ID == uuid.Nil {
		return nil, ErrMissingAccountID
	}

	if err := validateText(account); err != nil {
		return nil, err
	}

	return c.accountMarshaler().Marshal(&account)
}

// validateText rejects strings that JSON would rewrite, so an encoded account
// always decodes to the value that was encoded.
func validateText(account Account) error {
	if !utf8.ValidString(account.Name) {
		return fmt.Errorf("name: %w", ErrInvalidText)
	}

	for k, v := range account.Attributes {
		switch {
		case !utf8.ValidString(k):
			return fmt.Errorf("attribute key %q: %w", k, ErrInvalidText)
		case !utf8.ValidString(v):
			return fmt.Errorf("attribute %q: %w", k, ErrInvalidText)
		}
	}

	return nil
}

func (c JSONCodec) DecodeAccount(data []byte) (Account, error) {
	account := Account{}
	if err := c.accountMarshaler().Unmarshal(data, &account); err != nil {
		return Account{}, err
	} else if account.ID == uuid.Nil {
		return Account{}, ErrMissingAccountID
	}

	return account, nil
}

func (c JSONCodec) EncodeID(id uuid.UUID) ([]byte, error) {
	if id == uuid.Nil {
		return nil, ErrMissingAccountID
	}

	return c.idMarshaler().Marshal(&id)
}

func (c JSONCodec) DecodeID(data []byte) (uuid.UUID, error) {
	id := uuid.UUID{}
	if err := c.idMarshaler().Unmarshal(data, &id); err != nil {
		return uuid.Nil, err
	} else if id == uuid.Nil {
		return uuid.Nil, ErrMissingAccountID
	}

	return id, nil
}

// the zero JSONCodec is usable
func (c JSONCodec) accountMarshaler() Marshaler[Account, *Account] {
	if c.accounts == nil {
		return JSONMarshaler[Account]{}
	}

	return c.accounts
}

func (c JSONCodec) idMarshaler() Marshaler[uuid.UUID, *uuid.UUID] {
	if c.ids == nil {
		return JSONMarshaler[uuid.UUID]{}
	}

	return c.ids
}

// ErrMissingAccountID is returned when an account or deletion payload has no ID.
var ErrMissingAccountID = errors.New("account ID is required")

// ErrInvalidText is returned when an account's name or attributes are not valid UTF-8.
var ErrInvalidText = errors.New("text is not valid UTF-8")

// A DecodeError is returned when an event's payload cannot be decoded into
// the shape its type requires.
type DecodeError struct {
	EventType string
	EventID   string
	Err       error
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("decoding %s event %s: %v", e.EventType, e.EventID, e.Err)
}

func (e DecodeError) Unwrap() error {
	return e.Err
}
