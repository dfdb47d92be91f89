// Package postgres provides a PostgreSQL-backed asset catalog.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/fruitsalade/mediavault/internal/catalog"
	"github.com/fruitsalade/mediavault/internal/logging"
	"github.com/fruitsalade/mediavault/internal/metrics"
	"github.com/fruitsalade/mediavault/internal/models"
)

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

const (
	uniqueViolation   = "23505"
	hashConstraint    = "assets_disk_sha256_key"
	pathConstraint    = "assets_disk_path_key"
	assetSelectFields = `id, disk, dir, path, original_name, ext, mime, size_bytes, width, height,
		sha256, thumbnails, visibility, created_by, created_at, updated_at`
)

// Store is a PostgreSQL asset catalog.
type Store struct {
	db *sql.DB
}

var _ catalog.Catalog = (*Store)(nil)

// New opens a connection pool and verifies it.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate runs the embedded SQL migrations in name order. Every migration is
// idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		logging.Info("running migration", zap.String("file", f))
		content, err := migrationsFS.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
	}
	return nil
}

// FindByHash returns the asset with the given hash on disk, or nil.
func (s *Store) FindByHash(ctx context.Context, hash models.ContentHash, disk string) (*models.AssetRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordCatalogQuery("postgres", "find_by_hash", time.Since(start)) }()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetSelectFields+` FROM assets WHERE sha256 = $1 AND disk = $2 LIMIT 1`,
		hash.String(), disk)
	rec, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by hash: %w", err)
	}
	return rec, nil
}

// Create inserts rec. Unique index violations map to the catalog sentinels so
// that a racing duplicate upload is reported in-band.
func (s *Store) Create(ctx context.Context, rec *models.AssetRecord) error {
	start := time.Now()
	defer func() { metrics.RecordCatalogQuery("postgres", "create", time.Since(start)) }()

	thumbs, err := json.Marshal(nonNil(rec.Thumbnails))
	if err != nil {
		return fmt.Errorf("encode thumbnails: %w", err)
	}

	var hash sql.NullString
	if rec.ContentHash != nil {
		hash = sql.NullString{String: rec.ContentHash.String(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assets (id, disk, dir, path, original_name, ext, mime, size_bytes,
			width, height, sha256, thumbnails, visibility, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		rec.ID, rec.Disk, rec.Directory, rec.RelativePath, rec.OriginalName, rec.Extension,
		rec.MimeType, int64(rec.SizeBytes), nullUint32(rec.Width), nullUint32(rec.Height),
		hash, thumbs, string(rec.Visibility), nullString(rec.CreatedBy), rec.CreatedAt, rec.UpdatedAt,
	)
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case hashConstraint:
			return catalog.ErrDuplicateContent
		case pathConstraint:
			return catalog.ErrPathTaken
		}
	}
	return fmt.Errorf("insert asset: %w", err)
}

// List returns a page of assets, newest first.
func (s *Store) List(ctx context.Context, q catalog.Query) (*catalog.Page, error) {
	start := time.Now()
	defer func() { metrics.RecordCatalogQuery("postgres", "list", time.Since(start)) }()

	q = q.Normalize()
	where := []string{"disk = $1"}
	args := []interface{}{q.Disk}
	if q.Directory != "" {
		args = append(args, q.Directory)
		where = append(where, fmt.Sprintf("dir = $%d", len(args)))
	}
	if q.Search != "" {
		args = append(args, "%"+escapeLike(q.Search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(original_name ILIKE $%d OR path ILIKE $%d OR mime ILIKE $%d)", n, n, n))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count assets: %w", err)
	}

	args = append(args, q.PerPage, q.Offset())
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM assets WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		assetSelectFields, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	page := &catalog.Page{Total: total, Page: q.Page, PerPage: q.PerPage, Items: []*models.AssetRecord{}}
	for rows.Next() {
		rec, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		page.Items = append(page.Items, rec)
	}
	return page, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(sc scanner) (*models.AssetRecord, error) {
	var (
		rec        models.AssetRecord
		ext        sql.NullString
		size       int64
		width      sql.NullInt64
		height     sql.NullInt64
		hash       sql.NullString
		thumbs     []byte
		visibility string
		createdBy  sql.NullString
	)
	if err := sc.Scan(&rec.ID, &rec.Disk, &rec.Directory, &rec.RelativePath, &rec.OriginalName,
		&ext, &rec.MimeType, &size, &width, &height, &hash, &thumbs, &visibility, &createdBy,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}

	rec.Extension = ext.String
	rec.SizeBytes = uint64(size)
	rec.Visibility = models.Visibility(visibility)
	if width.Valid {
		w := uint32(width.Int64)
		rec.Width = &w
	}
	if height.Valid {
		h := uint32(height.Int64)
		rec.Height = &h
	}
	if hash.Valid {
		h, err := models.ParseContentHash(strings.TrimSpace(hash.String))
		if err != nil {
			return nil, err
		}
		rec.ContentHash = &h
	}
	if createdBy.Valid {
		u := createdBy.String
		rec.CreatedBy = &u
	}
	rec.Thumbnails = map[string]string{}
	if len(thumbs) > 0 {
		if err := json.Unmarshal(thumbs, &rec.Thumbnails); err != nil {
			return nil, fmt.Errorf("decode thumbnails: %w", err)
		}
	}
	return &rec, nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nullUint32(v *uint32) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
