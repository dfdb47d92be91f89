// Package catalogtest holds a behavioural test suite shared by every
// catalog.Catalog implementation.
package catalogtest

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fruitsalade/mediavault/internal/catalog"
	"github.com/fruitsalade/mediavault/internal/models"
)

// NewRecord builds a record on disk "public" for content.
func NewRecord(dir, name, content string, created time.Time) *models.AssetRecord {
	h := models.ContentHash(sha256.Sum256([]byte(content)))
	return &models.AssetRecord{
		ID:           uuid.NewString(),
		Disk:         "public",
		Directory:    dir,
		RelativePath: dir + "/" + name,
		OriginalName: name,
		Extension:    "png",
		MimeType:     "image/png",
		SizeBytes:    uint64(len(content)),
		ContentHash:  &h,
		Thumbnails:   map[string]string{},
		Visibility:   models.VisibilityPublic,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

// Run exercises c. The factory must return an empty catalog.
func Run(t *testing.T, newCatalog func(t *testing.T) catalog.Catalog) {
	t.Run("FindByHash", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)
		rec := NewRecord("logos", "a.png", "alpha", time.Now())
		if err := c.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}

		got, err := c.FindByHash(ctx, *rec.ContentHash, "public")
		if err != nil || got == nil {
			t.Fatalf("FindByHash = %v, %v", got, err)
		}
		if got.ID != rec.ID || got.RelativePath != "logos/a.png" {
			t.Errorf("FindByHash returned %+v", got)
		}

		other, err := c.FindByHash(ctx, *rec.ContentHash, "s3")
		if err != nil || other != nil {
			t.Errorf("hash on another disk = %v, %v; want nil, nil", other, err)
		}
	})

	t.Run("UniqueHash", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)
		first := NewRecord("logos", "a.png", "same", time.Now())
		second := NewRecord("misc", "b.png", "same", time.Now())
		if err := c.Create(ctx, first); err != nil {
			t.Fatal(err)
		}
		if err := c.Create(ctx, second); !errors.Is(err, catalog.ErrDuplicateContent) {
			t.Errorf("second Create err = %v, want ErrDuplicateContent", err)
		}
	})

	t.Run("UniquePath", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)
		first := NewRecord("logos", "a.png", "one", time.Now())
		second := NewRecord("logos", "a.png", "two", time.Now())
		if err := c.Create(ctx, first); err != nil {
			t.Fatal(err)
		}
		if err := c.Create(ctx, second); !errors.Is(err, catalog.ErrPathTaken) {
			t.Errorf("second Create err = %v, want ErrPathTaken", err)
		}
	})

	t.Run("ConcurrentDuplicates", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)

		const n = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec := NewRecord("misc", fmt.Sprintf("f%d.png", i), "race", time.Now())
				if err := c.Create(ctx, rec); err == nil {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		if created != 1 {
			t.Errorf("%d concurrent creates succeeded, want 1", created)
		}
		page, err := c.List(ctx, catalog.Query{Disk: "public"})
		if err != nil {
			t.Fatal(err)
		}
		if page.Total != 1 {
			t.Errorf("catalog holds %d records, want 1", page.Total)
		}
	})

	t.Run("List", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		recs := []*models.AssetRecord{
			NewRecord("logos", "Acme.png", "1", base),
			NewRecord("logos", "beta.png", "2", base.Add(time.Minute)),
			NewRecord("logos/brand", "acme-dark.png", "3", base.Add(2*time.Minute)),
			NewRecord("misc", "other.png", "4", base.Add(3*time.Minute)),
		}
		for _, r := range recs {
			if err := c.Create(ctx, r); err != nil {
				t.Fatal(err)
			}
		}

		tests := []struct {
			name  string
			q     catalog.Query
			total int
			first string
		}{
			{"all newest first", catalog.Query{Disk: "public"}, 4, "misc/other.png"},
			{"dir exact", catalog.Query{Disk: "public", Directory: "logos/"}, 2, "logos/beta.png"},
			{"search case-insensitive", catalog.Query{Disk: "public", Search: "ACME"}, 2, "logos/brand/acme-dark.png"},
			{"search mime", catalog.Query{Disk: "public", Search: "image/png", PerPage: 1}, 4, "misc/other.png"},
			{"second page", catalog.Query{Disk: "public", Page: 2, PerPage: 3}, 4, "logos/Acme.png"},
			{"other disk", catalog.Query{Disk: "s3"}, 0, ""},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				page, err := c.List(ctx, tt.q)
				if err != nil {
					t.Fatalf("List: %v", err)
				}
				if page.Total != tt.total {
					t.Errorf("Total = %d, want %d", page.Total, tt.total)
				}
				if tt.first == "" {
					if len(page.Items) != 0 {
						t.Errorf("expected no items, got %d", len(page.Items))
					}
					return
				}
				if len(page.Items) == 0 || page.Items[0].RelativePath != tt.first {
					t.Errorf("first item = %v, want %s", page.Items, tt.first)
				}
			})
		}
	})
}
