package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/fruitsalade/mediavault/internal/logging"
	"github.com/fruitsalade/mediavault/internal/storage"
)

func init() {
	logging.InitNop()
}

func TestPutAndGetObject(t *testing.T) {
	ctx := context.Background()
	b := NewWithFs(afero.NewMemMapFs(), true)

	if err := b.PutObject(ctx, "logos/a.png", strings.NewReader("hello"), 5); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	got, err := b.ReadAll(ctx, "logos/a.png")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("content = %q, want hello", got)
	}

	rc, n, err := b.GetObject(ctx, "logos/a.png", 1, 3)
	if err != nil {
		t.Fatalf("GetObject range: %v", err)
	}
	defer rc.Close()
	part, _ := io.ReadAll(rc)
	if n != 3 || string(part) != "ell" {
		t.Errorf("range read = %q (%d), want ell (3)", part, n)
	}
}

func TestPutObjectExclusive(t *testing.T) {
	ctx := context.Background()
	b := NewWithFs(afero.NewMemMapFs(), true)

	if err := b.PutObjectExclusive(ctx, "misc/x.jpg", strings.NewReader("one"), 3); err != nil {
		t.Fatalf("first exclusive put: %v", err)
	}
	err := b.PutObjectExclusive(ctx, "misc/x.jpg", strings.NewReader("two"), 3)
	if !errors.Is(err, storage.ErrObjectExists) {
		t.Fatalf("second exclusive put err = %v, want ErrObjectExists", err)
	}
	got, _ := b.ReadAll(ctx, "misc/x.jpg")
	if string(got) != "one" {
		t.Errorf("content overwritten: %q", got)
	}
}

func TestListDirectories(t *testing.T) {
	ctx := context.Background()
	b := NewWithFs(afero.NewMemMapFs(), true)

	for _, d := range []string{"logos/brand", "logos/partners/2024", "logos/.hidden"} {
		if err := b.MakeDirectory(ctx, d); err != nil {
			t.Fatalf("MakeDirectory(%s): %v", d, err)
		}
	}
	if err := b.PutObject(ctx, "logos/file.png", strings.NewReader("x"), 1); err != nil {
		t.Fatal(err)
	}

	dirs, err := b.ListDirectories(ctx, "logos")
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	want := []string{"logos/brand", "logos/partners"}
	if strings.Join(dirs, ",") != strings.Join(want, ",") {
		t.Errorf("dirs = %v, want %v", dirs, want)
	}

	missing, err := b.ListDirectories(ctx, "nope")
	if err != nil || len(missing) != 0 {
		t.Errorf("missing dir: got %v, %v; want empty, nil", missing, err)
	}
}

func TestObjectExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	b := NewWithFs(afero.NewMemMapFs(), true)

	b.PutObject(ctx, "a/b.txt", strings.NewReader("x"), 1)
	for _, key := range []string{"a/b.txt", "a"} {
		ok, err := b.ObjectExists(ctx, key)
		if err != nil || !ok {
			t.Errorf("ObjectExists(%s) = %v, %v", key, ok, err)
		}
	}
	if err := b.DeleteObject(ctx, "a/b.txt"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if err := b.DeleteObject(ctx, "a/b.txt"); err != nil {
		t.Errorf("deleting a missing object should not fail: %v", err)
	}
	if ok, _ := b.ObjectExists(ctx, "a/b.txt"); ok {
		t.Error("object should be gone")
	}
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	ctx := context.Background()
	parent := t.TempDir()
	root := filepath.Join(parent, "root")

	b, err := New(Config{RootPath: root, CreateDirs: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.PutObject(ctx, "../../escape.txt", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if _, err := os.Stat(filepath.Join(parent, "escape.txt")); err == nil {
		t.Fatal("write escaped the backend root")
	}
	if _, err := os.Stat(filepath.Join(root, "escape.txt")); err != nil {
		t.Errorf("expected write clamped inside root: %v", err)
	}
}

func TestNewRejectsMissingRoot(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty root_path")
	}
	if _, err := New(Config{RootPath: filepath.Join(t.TempDir(), "absent")}); err == nil {
		t.Error("expected error for missing root without create_dirs")
	}
}
