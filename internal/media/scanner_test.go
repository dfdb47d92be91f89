package media

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"

	"github.com/fruitsalade/mediavault/internal/catalog"
	"github.com/fruitsalade/mediavault/internal/logging"
	"github.com/fruitsalade/mediavault/internal/storage"
	"github.com/fruitsalade/mediavault/internal/storage/local"
)

func init() {
	logging.InitNop()
}

func TestScannerTree(t *testing.T) {
	ctx := context.Background()
	b := local.NewWithFs(afero.NewMemMapFs(), true)
	for _, d := range []string{
		"logos/brand/2024/q1/too-deep",
		"logos/partners",
		"misc/archive",
	} {
		if err := b.MakeDirectory(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	s := NewScanner(b, []string{"logos", "trainers", "misc"}, 3)
	tree, err := s.Tree(ctx)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}

	if len(tree) != 3 || tree[0].Name != "logos" || tree[1].Name != "trainers" || tree[2].Name != "misc" {
		t.Fatalf("roots out of order: %+v", tree)
	}
	if tree[1].Children == nil || len(tree[1].Children) != 0 {
		t.Errorf("missing root should be a leaf with empty children, got %#v", tree[1].Children)
	}

	want := []string{
		"logos",
		"logos/brand",
		"logos/brand/2024",
		"logos/brand/2024/q1",
		"logos/partners",
		"trainers",
		"misc",
		"misc/archive",
	}
	if got := Flatten(tree); !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten = %v\nwant %v", got, want)
	}

	q1 := tree[0].Children[0].Children[0].Children[0]
	if q1.Name != "q1" || len(q1.Children) != 0 {
		t.Errorf("depth limit not applied: %+v", q1)
	}
}

func TestScannerDepthZero(t *testing.T) {
	ctx := context.Background()
	b := local.NewWithFs(afero.NewMemMapFs(), true)
	b.MakeDirectory(ctx, "logos/brand")

	tree, err := NewScanner(b, []string{"logos"}, 0).Tree(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree) != 1 || len(tree[0].Children) != 0 {
		t.Errorf("depth 0 should give bare roots, got %+v", tree)
	}
}

func TestScannerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := local.NewWithFs(afero.NewMemMapFs(), true)
	if _, err := NewScanner(b, []string{"logos"}, 2).Tree(ctx); err == nil {
		t.Error("expected context error")
	}
}

// gatedBackend blocks the first ListDirectories call until release is
// closed and records whether the walk's context was cancelled by then.
type gatedBackend struct {
	storage.Backend
	once      sync.Once
	started   chan struct{}
	release   chan struct{}
	cancelled atomic.Bool
}

func (b *gatedBackend) ListDirectories(ctx context.Context, key string) ([]string, error) {
	b.once.Do(func() {
		close(b.started)
		<-b.release
		if ctx.Err() != nil {
			b.cancelled.Store(true)
		}
	})
	return b.Backend.ListDirectories(ctx, key)
}

func TestScanTreeSurvivesFirstCallerCancel(t *testing.T) {
	inner := local.NewWithFs(afero.NewMemMapFs(), true)
	if err := inner.MakeDirectory(context.Background(), "misc/archive"); err != nil {
		t.Fatal(err)
	}
	gb := &gatedBackend{Backend: inner, started: make(chan struct{}), release: make(chan struct{})}
	svc, err := NewService(DefaultConfig(), gb, catalog.NewMemory())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.ScanTree(ctx)
		firstErr <- err
	}()
	<-gb.started
	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("first caller err = %v, want context.Canceled", err)
	}

	second := make(chan error, 1)
	go func() {
		tree, err := svc.ScanTree(context.Background())
		if err == nil && len(Flatten(tree)) != 6 {
			err = fmt.Errorf("flat = %v", Flatten(tree))
		}
		second <- err
	}()
	close(gb.release)
	if err := <-second; err != nil {
		t.Errorf("second caller: %v", err)
	}
	if gb.cancelled.Load() {
		t.Error("shared walk ran on the cancelled caller's context")
	}
}
