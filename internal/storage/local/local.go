// Package local provides a filesystem storage backend built on afero, so the
// same code serves a real directory tree and an in-memory tree in tests.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/fruitsalade/mediavault/internal/metrics"
	"github.com/fruitsalade/mediavault/internal/storage"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath   string `json:"root_path" mapstructure:"root_path"`
	CreateDirs bool   `json:"create_dirs" mapstructure:"create_dirs"`
}

// LocalBackend implements storage.Backend on an afero filesystem rooted at
// the configured path.
type LocalBackend struct {
	fs         afero.Fs
	createDirs bool
}

// New creates a local backend over the OS filesystem.
func New(cfg Config) (*LocalBackend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	osfs := afero.NewOsFs()
	info, err := osfs.Stat(cfg.RootPath)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := osfs.MkdirAll(cfg.RootPath, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	return NewWithFs(afero.NewBasePathFs(osfs, cfg.RootPath), cfg.CreateDirs), nil
}

// NewWithFs wraps an existing afero filesystem. Keys resolve relative to its
// root.
func NewWithFs(fs afero.Fs, createDirs bool) *LocalBackend {
	return &LocalBackend{fs: fs, createDirs: createDirs}
}

// NewFromJSON creates a LocalBackend from raw JSON config.
func NewFromJSON(raw json.RawMessage) (*LocalBackend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse local config: %w", err)
	}
	return New(cfg)
}

func (b *LocalBackend) fullPath(key string) string {
	return "/" + strings.TrimPrefix(path.Clean("/"+key), "/")
}

func (b *LocalBackend) observe(op string, start time.Time, err error) {
	metrics.RecordStorageOperation("local", op, time.Since(start), err == nil)
}

// GetObject reads a file with range support.
func (b *LocalBackend) GetObject(_ context.Context, key string, offset, length int64) (_ io.ReadCloser, _ int64, err error) {
	start := time.Now()
	defer func() { b.observe("get_object", start, err) }()

	f, err := b.fs.Open(b.fullPath(key))
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", key, err)
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("seek %s: %w", key, err)
		}
	}

	if length > 0 {
		return &limitedReadCloser{
			Reader: io.LimitReader(f, length),
			Closer: f,
		}, length, nil
	}

	returnSize := info.Size() - offset
	if returnSize < 0 {
		returnSize = 0
	}
	return f, returnSize, nil
}

// PutObject writes content atomically via a temp file and rename.
func (b *LocalBackend) PutObject(_ context.Context, key string, body io.Reader, size int64) (err error) {
	start := time.Now()
	defer func() { b.observe("put_object", start, err) }()

	p := b.fullPath(key)
	dir := path.Dir(p)
	if err := b.ensureParent(dir, key); err != nil {
		return err
	}

	tmp, err := afero.TempFile(b.fs, dir, ".mediavault-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		b.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		b.fs.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", key, err)
	}

	if err := b.fs.Rename(tmpName, p); err != nil {
		b.fs.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", key, err)
	}
	return nil
}

// PutObjectExclusive creates the file with O_EXCL so that two writers racing
// on the same key cannot both succeed.
func (b *LocalBackend) PutObjectExclusive(_ context.Context, key string, body io.Reader, size int64) (err error) {
	start := time.Now()
	defer func() { b.observe("put_object_exclusive", start, err) }()

	p := b.fullPath(key)
	if err := b.ensureParent(path.Dir(p), key); err != nil {
		return err
	}

	f, err := b.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) || errors.Is(err, os.ErrExist) {
			return storage.ErrObjectExists
		}
		return fmt.Errorf("create %s: %w", key, err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		b.fs.Remove(p)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		b.fs.Remove(p)
		return fmt.Errorf("close %s: %w", key, err)
	}
	return nil
}

func (b *LocalBackend) ensureParent(dir, key string) error {
	if !b.createDirs {
		return nil
	}
	if err := b.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dirs for %s: %w", key, err)
	}
	return nil
}

// DeleteObject removes a file.
func (b *LocalBackend) DeleteObject(_ context.Context, key string) (err error) {
	start := time.Now()
	defer func() { b.observe("delete_object", start, err) }()

	err = b.fs.Remove(b.fullPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ObjectExists checks if a file or directory exists.
func (b *LocalBackend) ObjectExists(_ context.Context, key string) (bool, error) {
	ok, err := afero.Exists(b.fs, b.fullPath(key))
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return ok, nil
}

// MakeDirectory creates key and any missing parents.
func (b *LocalBackend) MakeDirectory(_ context.Context, key string) (err error) {
	start := time.Now()
	defer func() { b.observe("make_directory", start, err) }()

	if err := b.fs.MkdirAll(b.fullPath(key), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", key, err)
	}
	return nil
}

// ListDirectories returns immediate subdirectories of key. Hidden entries
// (leading dot) are skipped.
func (b *LocalBackend) ListDirectories(_ context.Context, key string) (_ []string, err error) {
	start := time.Now()
	defer func() { b.observe("list_directories", start, err) }()

	entries, err := afero.ReadDir(b.fs, b.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", key, err)
	}

	prefix := strings.Trim(key, "/")
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if prefix == "" {
			dirs = append(dirs, e.Name())
		} else {
			dirs = append(dirs, prefix+"/"+e.Name())
		}
	}
	return dirs, nil
}

// ReadAll is a convenience for tests and the CLI.
func (b *LocalBackend) ReadAll(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := b.GetObject(ctx, key, 0, 0)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Type returns "local".
func (b *LocalBackend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *LocalBackend) Close() error { return nil }

// limitedReadCloser wraps a LimitReader with a separate Closer.
type limitedReadCloser struct {
	io.Reader
	io.Closer
}
