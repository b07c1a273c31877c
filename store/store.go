// Package store persists cycle reports and order events.
package store

import "github.com/pkg/errors"

var ErrNotFound = errors.New("key not found")

type Store[T any] interface {
	Put(key string, value T) error
	Get(key string) (T, error)
	List() ([]T, error)
	Count() (int, error)
}

// New returns a memory store, or a bbolt store in file when kind is
// "persistent".
func New[T any](kind, file, bucket string) (Store[T], error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore[T](), nil
	case "persistent":
		return NewBoltStore[T](file, 0600, bucket)
	default:
		return nil, errors.Errorf("unknown store type %q", kind)
	}
}
