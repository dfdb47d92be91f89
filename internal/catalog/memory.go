package catalog

import (
	"context"
	"sync"

	"github.com/fruitsalade/mediavault/internal/models"
)

// Memory is an in-process Catalog. The mutex makes the uniqueness checks in
// Create atomic with the insert.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*models.AssetRecord // id -> record
	byHash  map[string]string              // disk + hash -> id
	byPath  map[string]string              // disk + path -> id
}

// NewMemory creates an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*models.AssetRecord),
		byHash:  make(map[string]string),
		byPath:  make(map[string]string),
	}
}

func hashKey(disk string, h models.ContentHash) string { return disk + "\x00" + h.String() }
func pathKey(disk, p string) string                   { return disk + "\x00" + p }

// FindByHash returns the record for hash on disk, or nil.
func (m *Memory) FindByHash(_ context.Context, hash models.ContentHash, disk string) (*models.AssetRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byHash[hashKey(disk, hash)]
	if !ok {
		return nil, nil
	}
	return m.records[id].Clone(), nil
}

// Create stores a copy of rec.
func (m *Memory) Create(_ context.Context, rec *models.AssetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ContentHash != nil {
		if _, ok := m.byHash[hashKey(rec.Disk, *rec.ContentHash)]; ok {
			return ErrDuplicateContent
		}
	}
	if _, ok := m.byPath[pathKey(rec.Disk, rec.RelativePath)]; ok {
		return ErrPathTaken
	}

	c := rec.Clone()
	m.records[c.ID] = c
	m.byPath[pathKey(c.Disk, c.RelativePath)] = c.ID
	if c.ContentHash != nil {
		m.byHash[hashKey(c.Disk, *c.ContentHash)] = c.ID
	}
	return nil
}

// List returns matching records, newest first.
func (m *Memory) List(_ context.Context, q Query) (*Page, error) {
	q = q.Normalize()

	m.mu.RLock()
	var recs []*models.AssetRecord
	for _, r := range m.records {
		if Matches(r, q) {
			recs = append(recs, r.Clone())
		}
	}
	m.mu.RUnlock()

	return Paginate(recs, q), nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
