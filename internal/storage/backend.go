// Package storage defines the Backend interface for asset storage and a
// registry that resolves named disks to configured backends.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrObjectExists is returned by PutObjectExclusive when the key is taken.
	ErrObjectExists = errors.New("object already exists")

	// ErrExclusiveUnsupported is returned by backends that cannot create
	// an object atomically only-if-absent.
	ErrExclusiveUnsupported = errors.New("exclusive create not supported")

	// ErrUnknownDisk is returned when a disk name has no configured backend.
	ErrUnknownDisk = errors.New("unknown storage disk")
)

// Backend is the interface for asset storage backends. Keys are
// slash-separated and relative to the backend root; directories are
// addressed the same way without a trailing slash.
type Backend interface {
	// GetObject retrieves an object by key with optional range support.
	// If offset=0 and length=0, the entire object is returned.
	GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)

	// PutObject writes content to the given key, replacing any existing object.
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error

	// PutObjectExclusive writes content only if nothing exists at key,
	// returning ErrObjectExists otherwise.
	PutObjectExclusive(ctx context.Context, key string, body io.Reader, size int64) error

	// DeleteObject removes an object by key. Missing objects are not an error.
	DeleteObject(ctx context.Context, key string) error

	// ObjectExists checks if an object or directory exists at the given key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// MakeDirectory ensures a directory exists, creating parents as needed.
	MakeDirectory(ctx context.Context, key string) error

	// ListDirectories returns the immediate subdirectories of key as full
	// relative paths ("logos/brand"), in backend order. A missing directory
	// yields an empty list.
	ListDirectories(ctx context.Context, key string) ([]string, error)

	// Type returns the backend type identifier ("local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
