package engine

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
)

const shardCount = 32

type entry struct {
	rec *models.MemoryRecord
	seq uint64
}

type shard struct {
	mu    sync.RWMutex
	items map[string]*entry
}

// shardedMap is a lock-striped record map. Each record is guarded by the lock
// of the shard its id hashes to; no operation holds more than one shard lock.
type shardedMap struct {
	shards [shardCount]*shard
	seq    atomic.Uint64
}

func newShardedMap() *shardedMap {
	m := &shardedMap{}
	for i := range m.shards {
		m.shards[i] = &shard{items: make(map[string]*entry)}
	}
	return m
}

func (m *shardedMap) shardFor(id string) *shard {
	return m.shards[xxhash.Sum64String(id)%shardCount]
}

// insert stores rec unless the id is taken. The map owns rec afterwards.
func (m *shardedMap) insert(rec *models.MemoryRecord) bool {
	s := m.shardFor(rec.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[rec.ID]; exists {
		return false
	}
	s.items[rec.ID] = &entry{rec: rec, seq: m.seq.Add(1)}
	return true
}

// get returns a copy of the record.
func (m *shardedMap) get(id string) (*models.MemoryRecord, bool) {
	s := m.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return e.rec.Clone(), true
}

// mutate runs fn on the live record under the shard write lock and returns a
// copy of the result. Insertion order is preserved.
func (m *shardedMap) mutate(id string, fn func(rec *models.MemoryRecord)) (*models.MemoryRecord, bool) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return nil, false
	}
	fn(e.rec)
	return e.rec.Clone(), true
}

// replace swaps in a new record for an existing id. fn receives the current
// record and returns its replacement.
func (m *shardedMap) replace(id string, fn func(cur *models.MemoryRecord) *models.MemoryRecord) (*models.MemoryRecord, bool) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return nil, false
	}
	e.rec = fn(e.rec)
	return e.rec.Clone(), true
}

func (m *shardedMap) remove(id string) bool {
	removed, _ := m.removeIf(id, nil)
	return removed
}

// removeIf deletes the record when pred is nil or returns true for the live
// record. found reports whether the id was present at all.
func (m *shardedMap) removeIf(id string, pred func(rec *models.MemoryRecord) bool) (removed, found bool) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return false, false
	}
	if pred != nil && !pred(e.rec) {
		return false, true
	}
	delete(s.items, id)
	return true, true
}

// snapshot copies every record, ordered by insertion. Shards are locked one at
// a time so the result is point-in-time per shard, not across the whole map.
func (m *shardedMap) snapshot() []*models.MemoryRecord {
	var entries []entry
	for _, s := range m.shards {
		s.mu.RLock()
		for _, e := range s.items {
			entries = append(entries, entry{rec: e.rec.Clone(), seq: e.seq})
		}
		s.mu.RUnlock()
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})
	out := make([]*models.MemoryRecord, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out
}

func (m *shardedMap) len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
