// Package models contains the persisted data types shared by the catalog,
// the media service and the HTTP API.
package models

import (
	"encoding/hex"
	"fmt"
	"time"
)

// Visibility controls whether an asset is publicly addressable.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// ContentHash is a SHA-256 digest of an asset's full byte stream.
type ContentHash [32]byte

// ParseContentHash decodes a 64-character hex digest.
func ParseContentHash(s string) (ContentHash, error) {
	var h ContentHash
	if len(s) != hex.EncodedLen(len(h)) {
		return h, fmt.Errorf("content hash: want %d hex chars, got %d", hex.EncodedLen(len(h)), len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("content hash: %w", err)
	}
	return h, nil
}

func (h ContentHash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText encodes the hash as lowercase hex.
func (h ContentHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hex digest.
func (h *ContentHash) UnmarshalText(b []byte) error {
	parsed, err := ParseContentHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// AssetRecord is one stored file.
type AssetRecord struct {
	ID           string            `json:"id" yaml:"id"`
	Disk         string            `json:"disk" yaml:"disk"`
	Directory    string            `json:"dir" yaml:"dir"`
	RelativePath string            `json:"path" yaml:"path"`
	OriginalName string            `json:"original_name" yaml:"original_name"`
	Extension    string            `json:"ext" yaml:"ext"`
	MimeType     string            `json:"mime" yaml:"mime"`
	SizeBytes    uint64            `json:"size_bytes" yaml:"size_bytes"`
	Width        *uint32           `json:"width" yaml:"width"`
	Height       *uint32           `json:"height" yaml:"height"`
	ContentHash  *ContentHash      `json:"sha256" yaml:"sha256"`
	Thumbnails   map[string]string `json:"thumbnails" yaml:"thumbnails"`
	Visibility   Visibility        `json:"visibility" yaml:"visibility"`
	CreatedBy    *string           `json:"created_by" yaml:"created_by"`
	CreatedAt    time.Time         `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a deep copy so callers can hand records out without sharing
// maps or pointers with a catalog's internal state.
func (r *AssetRecord) Clone() *AssetRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Width != nil {
		w := *r.Width
		c.Width = &w
	}
	if r.Height != nil {
		h := *r.Height
		c.Height = &h
	}
	if r.ContentHash != nil {
		h := *r.ContentHash
		c.ContentHash = &h
	}
	if r.CreatedBy != nil {
		u := *r.CreatedBy
		c.CreatedBy = &u
	}
	c.Thumbnails = make(map[string]string, len(r.Thumbnails))
	for k, v := range r.Thumbnails {
		c.Thumbnails[k] = v
	}
	return &c
}
