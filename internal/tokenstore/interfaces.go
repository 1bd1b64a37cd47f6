package tokenstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("tokenstore: key not found")

// Store reads, writes and deletes string values by key in persistent storage.
type Store interface {
	// Get returns the value stored under key. Returns ErrNotFound if the key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Set persists value under key, overwriting any existing value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Error reports a failed storage operation.
type Error struct {
	Op  string // "get", "set", "delete"
	Key string
	Err error
}

func (e *Error) Error() string {
	return "tokenstore: " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
