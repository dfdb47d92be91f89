package media

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/fruitsalade/mediavault/internal/catalog"
	"github.com/fruitsalade/mediavault/internal/models"
)

// Resolution is a client choice offered when an upload duplicates an
// existing asset.
type Resolution string

const (
	ResolutionReplaceExisting Resolution = "replace_existing"
	ResolutionKeepBoth        Resolution = "keep_both"
	ResolutionUseExisting     Resolution = "use_existing"
)

// Conflict reports that identical content is already stored.
type Conflict struct {
	Existing *models.AssetRecord
	Options  []Resolution
}

func newConflict(existing *models.AssetRecord) *Conflict {
	return &Conflict{
		Existing: existing,
		Options:  []Resolution{ResolutionReplaceExisting, ResolutionKeepBoth, ResolutionUseExisting},
	}
}

// HashContent returns the SHA-256 digest of data.
func HashContent(data []byte) models.ContentHash {
	return models.ContentHash(sha256.Sum256(data))
}

// DedupIndex answers whether content is already stored on a disk.
type DedupIndex struct {
	catalog catalog.Catalog
}

// NewDedupIndex creates an index over c.
func NewDedupIndex(c catalog.Catalog) *DedupIndex {
	return &DedupIndex{catalog: c}
}

// Check returns a Conflict when a record with hash exists on disk.
func (d *DedupIndex) Check(ctx context.Context, hash models.ContentHash, disk string) (*Conflict, error) {
	existing, err := d.catalog.FindByHash(ctx, hash, disk)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	return newConflict(existing), nil
}
