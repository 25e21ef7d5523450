package accounts

import "encoding/json"

// A Marshaler marshals and unmarshals values of T to/from bytes.
type Marshaler[T any, PT *T] interface {
	Marshal(src PT) ([]byte, error)
	Unmarshal(data []byte, dest PT) error
}

// JSONMarshaler is a Marshaler using encoding/json.
type JSONMarshaler[T any] struct{}

var _ Marshaler[Account, *Account] = JSONMarshaler[Account]{}

func (JSONMarshaler[T]) Marshal(src *T) ([]byte, error) {
	return json.Marshal(src)
}

func (JSONMarshaler[T]) Unmarshal(data []byte, dest *T) error {
	return json.Unmarshal(data, dest)
}
