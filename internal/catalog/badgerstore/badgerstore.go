// Package badgerstore is an embedded asset catalog on BadgerDB.
//
// Layout:
//
//	asset/<id>              JSON AssetRecord
//	hash/<disk>\x00<sha256> id
//	path/<disk>\x00<path>   id
//
// Create checks and writes the index keys in a single transaction, so a
// concurrent duplicate surfaces as badger.ErrConflict and is retried against
// the committed state.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/fruitsalade/mediavault/internal/catalog"
	"github.com/fruitsalade/mediavault/internal/metrics"
	"github.com/fruitsalade/mediavault/internal/models"
)

const maxConflictRetries = 5

var (
	assetPrefix = []byte("asset/")
	hashPrefix  = []byte("hash/")
	pathPrefix  = []byte("path/")
)

// Store is a BadgerDB-backed catalog.
type Store struct {
	db *badger.DB
}

var _ catalog.Catalog = (*Store)(nil)

// Open opens (or creates) a catalog at dir. An empty dir opens an in-memory
// database.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func assetKey(id string) []byte {
	return append(append([]byte{}, assetPrefix...), id...)
}

func hashKey(disk string, h models.ContentHash) []byte {
	k := append(append([]byte{}, hashPrefix...), disk...)
	k = append(k, 0)
	return append(k, h.String()...)
}

func pathKey(disk, p string) []byte {
	k := append(append([]byte{}, pathPrefix...), disk...)
	k = append(k, 0)
	return append(k, p...)
}

// FindByHash returns the record with hash on disk, or nil.
func (s *Store) FindByHash(_ context.Context, hash models.ContentHash, disk string) (*models.AssetRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordCatalogQuery("badger", "find_by_hash", time.Since(start)) }()

	var rec *models.AssetRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(hashKey(disk, hash))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		rec, err = getAsset(txn, string(id))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find by hash: %w", err)
	}
	return rec, nil
}

func getAsset(txn *badger.Txn, id string) (*models.AssetRecord, error) {
	item, err := txn.Get(assetKey(id))
	if err != nil {
		return nil, err
	}
	var rec models.AssetRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create stores rec along with its hash and path index keys.
func (s *Store) Create(_ context.Context, rec *models.AssetRecord) error {
	start := time.Now()
	defer func() { metrics.RecordCatalogQuery("badger", "create", time.Since(start)) }()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode asset: %w", err)
	}

	for attempt := 0; ; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			pk := pathKey(rec.Disk, rec.RelativePath)
			var hk []byte
			if rec.ContentHash != nil {
				hk = hashKey(rec.Disk, *rec.ContentHash)
				if taken, err := exists(txn, hk); err != nil {
					return err
				} else if taken {
					return catalog.ErrDuplicateContent
				}
			}
			if taken, err := exists(txn, pk); err != nil {
				return err
			} else if taken {
				return catalog.ErrPathTaken
			}

			if err := txn.Set(assetKey(rec.ID), data); err != nil {
				return err
			}
			if err := txn.Set(pk, []byte(rec.ID)); err != nil {
				return err
			}
			if hk != nil {
				return txn.Set(hk, []byte(rec.ID))
			}
			return nil
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		break
	}
	if err == nil || errors.Is(err, catalog.ErrDuplicateContent) || errors.Is(err, catalog.ErrPathTaken) {
		return err
	}
	return fmt.Errorf("create asset: %w", err)
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	return err == nil, err
}

// List scans all records and filters them in process.
func (s *Store) List(_ context.Context, q catalog.Query) (*catalog.Page, error) {
	start := time.Now()
	defer func() { metrics.RecordCatalogQuery("badger", "list", time.Since(start)) }()

	q = q.Normalize()
	var recs []*models.AssetRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = assetPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec models.AssetRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if catalog.Matches(&rec, q) {
				recs = append(recs, &rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return catalog.Paginate(recs, q), nil
}
