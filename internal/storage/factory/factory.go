// Package factory builds storage backends from their type name and raw
// config, and assembles them into a storage.Registry.
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fruitsalade/mediavault/internal/storage"
	"github.com/fruitsalade/mediavault/internal/storage/local"
	s3backend "github.com/fruitsalade/mediavault/internal/storage/s3"
)

// DiskConfig describes one named disk.
type DiskConfig struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// NewBackend creates a Backend from a backend type string and JSON config.
func NewBackend(ctx context.Context, backendType string, config json.RawMessage) (storage.Backend, error) {
	switch backendType {
	case "s3":
		return s3backend.NewBackendFromJSON(ctx, config)
	case "local":
		return local.NewFromJSON(config)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
}

// NewRegistry instantiates every configured disk. On failure, disks opened
// so far are closed.
func NewRegistry(ctx context.Context, disks map[string]DiskConfig) (*storage.Registry, error) {
	reg := storage.NewRegistry()
	for name, d := range disks {
		b, err := NewBackend(ctx, d.Type, d.Config)
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("disk %s: %w", name, err)
		}
		reg.Register(name, b)
	}
	return reg, nil
}
