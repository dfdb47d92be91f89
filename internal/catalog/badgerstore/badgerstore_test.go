package badgerstore

import (
	"context"
	"testing"
	"time"

	"github.com/fruitsalade/mediavault/internal/catalog"
	"github.com/fruitsalade/mediavault/internal/catalog/catalogtest"
)

func TestBadgerCatalog(t *testing.T) {
	catalogtest.Run(t, func(t *testing.T) catalog.Catalog {
		s, err := Open("")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	rec := catalogtest.NewRecord("trainers", "jo.jpg", "jo", time.Now().UTC())
	w, h := uint32(640), uint32(480)
	rec.Width, rec.Height = &w, &h
	rec.Thumbnails["64"] = "thumbnails/trainers/jo_64.jpg"
	if err := s.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, err := s.FindByHash(ctx, *rec.ContentHash, "public")
	if err != nil || got == nil {
		t.Fatalf("FindByHash after reopen = %v, %v", got, err)
	}
	if *got.Width != 640 || *got.Height != 480 {
		t.Errorf("dimensions = %dx%d", *got.Width, *got.Height)
	}
	if got.Thumbnails["64"] != "thumbnails/trainers/jo_64.jpg" {
		t.Errorf("thumbnails = %v", got.Thumbnails)
	}
}
