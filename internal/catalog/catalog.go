// Package catalog persists AssetRecords. Every implementation enforces the
// two uniqueness rules of the data model: one record per (disk, path) and
// one record per (disk, content hash).
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/fruitsalade/mediavault/internal/models"
)

var (
	// ErrDuplicateContent is returned by Create when a record with the same
	// content hash already exists on the disk.
	ErrDuplicateContent = errors.New("duplicate content hash")

	// ErrPathTaken is returned by Create when the relative path is in use.
	ErrPathTaken = errors.New("path already recorded")
)

const (
	DefaultPerPage = 24
	MaxPerPage     = 100
)

// Query filters List.
type Query struct {
	Disk      string
	Directory string // exact match; empty means all
	Search    string // case-insensitive substring of name, path or mime
	Page      int    // 1-based
	PerPage   int
}

// Normalize applies defaults and clamps paging.
func (q Query) Normalize() Query {
	q.Directory = strings.TrimRight(q.Directory, "/")
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	return q
}

// Offset returns the number of records to skip.
func (q Query) Offset() int {
	return (q.Page - 1) * q.PerPage
}

// Page is one page of List results, newest first.
type Page struct {
	Items   []*models.AssetRecord `json:"data"`
	Total   int                   `json:"total"`
	Page    int                   `json:"current_page"`
	PerPage int                   `json:"per_page"`
}

// Catalog is the asset record store.
type Catalog interface {
	// FindByHash returns the record with the given content hash on disk, or
	// nil when there is none.
	FindByHash(ctx context.Context, hash models.ContentHash, disk string) (*models.AssetRecord, error)

	// Create persists a new record. It fails with ErrDuplicateContent or
	// ErrPathTaken when a uniqueness rule would be violated.
	Create(ctx context.Context, rec *models.AssetRecord) error

	// List returns records matching q.
	List(ctx context.Context, q Query) (*Page, error)

	Close() error
}

// Matches reports whether rec satisfies the filters of q. Shared by the
// key-value implementations that filter in process.
func Matches(rec *models.AssetRecord, q Query) bool {
	if q.Disk != "" && rec.Disk != q.Disk {
		return false
	}
	if q.Directory != "" && rec.Directory != q.Directory {
		return false
	}
	if q.Search == "" {
		return true
	}
	s := strings.ToLower(q.Search)
	return strings.Contains(strings.ToLower(rec.OriginalName), s) ||
		strings.Contains(strings.ToLower(rec.RelativePath), s) ||
		strings.Contains(strings.ToLower(rec.MimeType), s)
}

// Paginate sorts records newest first and slices out the requested page.
func Paginate(recs []*models.AssetRecord, q Query) *Page {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID > recs[j].ID
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})

	page := &Page{Total: len(recs), Page: q.Page, PerPage: q.PerPage, Items: []*models.AssetRecord{}}
	start := q.Offset()
	if start >= len(recs) {
		return page
	}
	end := start + q.PerPage
	if end > len(recs) {
		end = len(recs)
	}
	page.Items = recs[start:end]
	return page
}
