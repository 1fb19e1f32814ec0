package domain

import (
	"bytes"
	"encoding/json"
)

// Opt is an explicitly optional value. The zero Opt is absent.
// Absent values encode as JSON null and decode from null or a missing key.
type Opt[T any] struct {
	value T
	ok    bool
}

// Some returns a present Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{value: v, ok: true}
}

// None returns an absent Opt.
func None[T any]() Opt[T] {
	return Opt[T]{}
}

// Get returns the value and whether it is present.
func (o Opt[T]) Get() (T, bool) {
	return o.value, o.ok
}

// IsSome reports whether the value is present.
func (o Opt[T]) IsSome() bool {
	return o.ok
}

// Or returns the value if present, otherwise def.
func (o Opt[T]) Or(def T) T {
	if o.ok {
		return o.value
	}
	return def
}

// OrZero returns the value if present, otherwise the zero value of T.
func (o Opt[T]) OrZero() T {
	return o.value
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Opt[T]) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*o = Opt[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// OptString turns an empty string into an absent Opt.
func OptString(s string) Opt[string] {
	if s == "" {
		return None[string]()
	}
	return Some(s)
}
