// Package media implements the upload side of the media library: directory
// validation and scanning, write authorization, content deduplication and
// ingestion of new assets with their thumbnails.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fruitsalade/mediavault/internal/bytesize"
	"github.com/fruitsalade/mediavault/internal/catalog"
	"github.com/fruitsalade/mediavault/internal/logging"
	"github.com/fruitsalade/mediavault/internal/metrics"
	"github.com/fruitsalade/mediavault/internal/models"
	"github.com/fruitsalade/mediavault/internal/storage"
	"github.com/fruitsalade/mediavault/internal/thumbnail"
)

const maxNameAttempts = 1000

// IngestRequest is one upload.
type IngestRequest struct {
	Directory        string
	Filename         string // optional requested name
	OriginalFilename string // client file name; supplies the extension
	Data             []byte
	Principal        *Principal
}

// IngestResult holds either the new asset or the conflict that prevented
// its creation.
type IngestResult struct {
	Asset    *models.AssetRecord
	Conflict *Conflict
}

// ListQuery filters List.
type ListQuery struct {
	Dir     string
	Search  string
	Page    int
	PerPage int
}

// Directories is the payload describing the browsable tree.
type Directories struct {
	Roots  []string          `json:"roots" yaml:"roots"`
	Labels []string          `json:"labels" yaml:"labels"`
	Tree   []DirectoryNode   `json:"tree" yaml:"tree"`
	Flat   []string          `json:"flat" yaml:"flat"`
	Config DirectoriesConfig `json:"config" yaml:"config"`
}

// DirectoriesConfig exposes the limits clients need before uploading.
type DirectoriesConfig struct {
	MaxFileSize       string `json:"max_file_size" yaml:"max_file_size"`
	MaxFileSizeBytes  int64  `json:"max_file_size_bytes" yaml:"max_file_size_bytes"`
	AllowedFolderNest int    `json:"allowed_folder_nest" yaml:"allowed_folder_nest"`
	ScanDepth         int    `json:"scan_depth" yaml:"scan_depth"`
}

// Service coordinates the media components.
type Service struct {
	cfg      Config
	backend  storage.Backend
	catalog  catalog.Catalog
	paths    *PathPolicy
	scanner  *Scanner
	policy   *Policy
	dedup    *DedupIndex
	thumbs   *thumbnail.Pipeline
	scans    singleflight.Group
	now      func() time.Time
	newID    func() string
	thumbOps []thumbnail.Option
}

// Option customises a Service.
type Option func(*Service)

// WithThumbnailOptions passes options to the thumbnail pipeline.
func WithThumbnailOptions(opts ...thumbnail.Option) Option {
	return func(s *Service) { s.thumbOps = append(s.thumbOps, opts...) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a service storing files on backend and records in cat.
func NewService(cfg Config, backend storage.Backend, cat catalog.Catalog, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Visibility == "" {
		cfg.Visibility = models.VisibilityPublic
	}

	s := &Service{
		cfg:     cfg,
		backend: backend,
		catalog: cat,
		paths:   NewPathPolicy(cfg.RootNames(), cfg.AllowedFolderNest),
		scanner: NewScanner(backend, cfg.RootNames(), cfg.ScanDepth),
		policy:  NewPolicy(cfg.EnforceRoleCheck, cfg.PermissionsByRoot),
		dedup:   NewDedupIndex(cat),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	thumbOpts := append([]thumbnail.Option{
		thumbnail.WithMemoryMonitor(thumbnail.NewRuntimeMonitor(cfg.MemoryLimit)),
	}, s.thumbOps...)
	s.thumbs = thumbnail.New(backend, thumbnail.Config{
		Specs:       cfg.Thumbnails,
		MaxPixels:   cfg.ThumbnailMaxPixels,
		MaxFileSize: cfg.ThumbnailMaxFilesizeBytes,
		Verbose:     cfg.VerboseLogging,
	}, thumbOpts...)
	return s, nil
}

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

// Paths returns the path policy.
func (s *Service) Paths() *PathPolicy { return s.paths }

// Policy returns the authorization policy.
func (s *Service) Policy() *Policy { return s.policy }

// ScanTree walks the allowed roots. Concurrent calls share one walk, which
// keeps running when the caller that started it goes away; each caller still
// returns as soon as its own ctx is done.
func (s *Service) ScanTree(ctx context.Context) ([]DirectoryNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	walk := context.WithoutCancel(ctx)
	ch := s.scans.DoChan("tree", func() (interface{}, error) {
		return s.scanner.Tree(walk)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]DirectoryNode), nil
	}
}

// Directories returns the roots, their labels, the scanned tree and the
// upload limits.
func (s *Service) Directories(ctx context.Context) (*Directories, error) {
	tree, err := s.ScanTree(ctx)
	if err != nil {
		return nil, err
	}
	return &Directories{
		Roots:  s.cfg.RootNames(),
		Labels: s.cfg.Labels(),
		Tree:   tree,
		Flat:   Flatten(tree),
		Config: DirectoriesConfig{
			MaxFileSize:       bytesize.Format(s.cfg.MaxFileSize),
			MaxFileSizeBytes:  s.cfg.MaxFileSize,
			AllowedFolderNest: s.cfg.AllowedFolderNest,
			ScanDepth:         s.cfg.ScanDepth,
		},
	}, nil
}

// List returns stored assets on the configured disk, newest first.
func (s *Service) List(ctx context.Context, q ListQuery) (*catalog.Page, error) {
	return s.catalog.List(ctx, catalog.Query{
		Disk:      s.cfg.Disk,
		Directory: q.Dir,
		Search:    q.Search,
		Page:      q.Page,
		PerPage:   q.PerPage,
	})
}

// CreateDirectory creates a sanitized child folder of parent and returns its
// path. An existing folder is not an error.
func (s *Service) CreateDirectory(ctx context.Context, parent, name string, principal *Principal) (string, error) {
	dir, err := s.paths.Normalize(parent)
	if err != nil {
		return "", err
	}
	if err := s.policy.Authorize(principal, dir, IntentWrite); err != nil {
		return "", err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidFolderName)
	}
	if utf8.RuneCountInString(name) > maxFolderNameLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidFolderName, maxFolderNameLength)
	}

	newPath, err := s.paths.Normalize(dir + "/" + SanitizeFolderName(name))
	if err != nil {
		return "", err
	}

	exists, err := s.backend.ObjectExists(ctx, newPath)
	if err != nil {
		return "", fmt.Errorf("check %s: %w", newPath, err)
	}
	if !exists {
		if err := s.backend.MakeDirectory(ctx, newPath); err != nil {
			return "", fmt.Errorf("create %s: %w", newPath, err)
		}
	}

	logging.WithContext(ctx).Info("media folder created",
		zap.String("user_id", principal.ID),
		zap.String("parent_dir", dir),
		zap.String("created", newPath))
	return newPath, nil
}

// Ingest stores an upload. Duplicate content yields a result carrying a
// Conflict and no new record.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	res, err := s.ingest(ctx, req)
	switch {
	case err != nil && isRejection(err):
		metrics.RecordIngest("rejected", int64(len(req.Data)))
	case err != nil:
		metrics.RecordIngest("error", int64(len(req.Data)))
	case res.Conflict != nil:
		metrics.RecordIngest("duplicate", int64(len(req.Data)))
	default:
		metrics.RecordIngest("created", int64(len(req.Data)))
	}
	return res, err
}

func isRejection(err error) bool {
	for _, target := range []error{
		ErrInvalidPath, ErrUnauthorized, ErrUnsupportedMediaType,
		ErrFileTooLarge, ErrEmptyFile, ErrInvalidFilename,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Service) ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	log := logging.WithContext(ctx)

	dir, err := s.paths.Normalize(req.Directory)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(req.Principal, dir, IntentWrite); err != nil {
		return nil, err
	}

	requested := strings.TrimSpace(req.Filename)
	if utf8.RuneCountInString(requested) > maxFilenameLength {
		return nil, fmt.Errorf("%w: longer than %d characters", ErrInvalidFilename, maxFilenameLength)
	}

	mimeType := DetectMediaType(req.Data)
	if err := s.cfg.validateUpload(int64(len(req.Data)), mimeType); err != nil {
		return nil, err
	}

	hash := HashContent(req.Data)
	conflict, err := s.dedup.Check(ctx, hash, s.cfg.Disk)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		if s.cfg.VerboseLogging {
			log.Info("media upload dedupe hit",
				zap.String("user_id", req.Principal.ID),
				zap.String("dir", dir),
				zap.String("disk", s.cfg.Disk),
				zap.String("duplicate_media_id", conflict.Existing.ID),
				zap.String("duplicate_path", conflict.Existing.RelativePath))
		}
		return &IngestResult{Conflict: conflict}, nil
	}

	originalName := requested
	if originalName == "" {
		originalName = req.OriginalFilename
	}
	_, ext := splitName(req.OriginalFilename)
	stem, _ := splitName(originalName)
	base := Slugify(stem)
	if base == "" {
		base = randomBase()
	}

	if err := s.backend.MakeDirectory(ctx, dir); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	reserve := thumbnail.Applicable(ext, mimeType)
	storedPath, err := s.storeOriginal(ctx, dir, base, ext, req.Data, reserve)
	if err != nil {
		return nil, err
	}

	storedStem, _ := splitName(storedPath)
	outcome := s.thumbs.Derive(ctx, thumbnail.Source{
		Data:      req.Data,
		Extension: ext,
		MimeType:  mimeType,
		Directory: dir,
		BaseName:  storedStem,
	})
	if reserve {
		s.thumbs.Release(ctx, dir, storedStem, outcome)
	}

	now := s.now().UTC()
	rec := &models.AssetRecord{
		ID:           s.newID(),
		Disk:         s.cfg.Disk,
		Directory:    dir,
		RelativePath: storedPath,
		OriginalName: originalName,
		Extension:    ext,
		MimeType:     mimeType,
		SizeBytes:    uint64(len(req.Data)),
		Width:        outcome.Width,
		Height:       outcome.Height,
		ContentHash:  &hash,
		Thumbnails:   outcome.Thumbnails,
		Visibility:   s.cfg.Visibility,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Principal != nil && req.Principal.ID != "" {
		id := req.Principal.ID
		rec.CreatedBy = &id
	}

	if err := s.catalog.Create(ctx, rec); err != nil {
		s.removeFiles(ctx, storedPath, outcome.Thumbnails)
		if errors.Is(err, catalog.ErrDuplicateContent) {
			conflict, cerr := s.dedup.Check(ctx, hash, s.cfg.Disk)
			if cerr != nil {
				return nil, cerr
			}
			if conflict != nil {
				log.Info("media upload lost dedupe race", zap.String("duplicate_media_id", conflict.Existing.ID))
				return &IngestResult{Conflict: conflict}, nil
			}
		}
		return nil, fmt.Errorf("record asset: %w", err)
	}

	if s.cfg.VerboseLogging {
		log.Info("media stored",
			zap.String("id", rec.ID),
			zap.String("path", storedPath),
			zap.String("mime", mimeType),
			zap.String("size", bytesize.Format(int64(len(req.Data)))),
			zap.Int("thumbnails", len(rec.Thumbnails)),
			zap.String("thumbnails_skipped", string(outcome.Skipped)))
	}
	return &IngestResult{Asset: rec}, nil
}

// storeOriginal writes data under the first free name in dir. With reserve
// set, a name also counts as taken while another asset owns its thumbnail
// names, so "logo.png" and "logo.jpg" never share thumbnails.
func (s *Service) storeOriginal(ctx context.Context, dir, base, ext string, data []byte, reserve bool) (string, error) {
	for n := 0; n < maxNameAttempts; n++ {
		name := candidateName(base, ext, n)
		stem, _ := splitName(name)
		if reserve {
			ok, err := s.thumbs.Reserve(ctx, dir, stem)
			if err != nil {
				return "", err
			}
			if !ok {
				continue
			}
		}

		key := path.Join(dir, name)
		err := s.putExclusive(ctx, key, data)
		if err == nil {
			return key, nil
		}
		if reserve {
			s.thumbs.Release(ctx, dir, stem, thumbnail.Outcome{})
		}
		if !errors.Is(err, storage.ErrObjectExists) {
			return "", fmt.Errorf("store %s: %w", key, err)
		}
	}
	return "", fmt.Errorf("%w: %s/%s after %d attempts", ErrNoFreeName, dir, base, maxNameAttempts)
}

func (s *Service) putExclusive(ctx context.Context, key string, data []byte) error {
	err := s.backend.PutObjectExclusive(ctx, key, bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, storage.ErrExclusiveUnsupported) {
		return err
	}
	exists, err := s.backend.ObjectExists(ctx, key)
	if err != nil {
		return fmt.Errorf("check %s: %w", key, err)
	}
	if exists {
		return storage.ErrObjectExists
	}
	return s.backend.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)))
}

func (s *Service) removeFiles(ctx context.Context, original string, thumbs map[string]string) {
	keys := []string{original}
	for _, k := range thumbs {
		keys = append(keys, k)
	}
	for _, k := range keys {
		if err := s.backend.DeleteObject(ctx, k); err != nil {
			logging.WithContext(ctx).Warn("failed to remove orphaned file", zap.String("key", k), zap.Error(err))
		}
	}
}
