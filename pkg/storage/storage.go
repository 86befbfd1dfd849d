package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// Storage provides key-value style document storage shared by the worker,
// the manager, and the supervisor. Every Write replaces the whole document
// atomically so a concurrent reader never observes a torn document.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
	// Purge removes every document under prefix. An empty prefix removes
	// everything. Used by the clean operation.
	Purge(ctx context.Context, prefix string) error
}
