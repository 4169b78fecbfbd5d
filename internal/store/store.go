package store

import (
	"sync"

	"github.com/coffersTech/nanotail/internal/model"
)

// Store holds the ordered record sequence and the monotonic line
// counter. Insertion order is display order; the only operations that
// disturb it are Replace (history resync) and Clear.
type Store struct {
	mu      sync.RWMutex
	records []model.Record
	line    int64

	// MaxRecords, when > 0, caps the sequence: Append evicts the oldest
	// record once the cap is exceeded. The line counter keeps climbing
	// regardless, so line numbers stay unique within a session.
	MaxRecords int
}

func New() *Store {
	return &Store{
		records: make([]model.Record, 0, 1024),
	}
}

// Append stamps the next line number on r and adds it to the end of the
// sequence. It always succeeds and returns the stored record.
func (s *Store) Append(r model.Record) model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.line++
	r.Line = s.line
	s.records = append(s.records, r)

	if s.MaxRecords > 0 && len(s.records) > s.MaxRecords {
		over := len(s.records) - s.MaxRecords
		s.records = append(s.records[:0:0], s.records[over:]...)
	}
	return r
}

// Replace swaps the whole sequence for rs, which the normalizer has
// already numbered starting at the current counter + 1. The counter
// advances past the whole batch so later appends continue after it; it
// is never reset here, only Clear does that. A batch larger than
// MaxRecords keeps only its newest records, same as Append eviction.
func (s *Store) Replace(rs []model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.line += int64(len(rs))
	if s.MaxRecords > 0 && len(rs) > s.MaxRecords {
		rs = rs[len(rs)-s.MaxRecords:]
	}
	s.records = append(s.records[:0:0], rs...)
}

// Clear empties the sequence and resets the counter, so the next append
// gets line 1. Only the explicit user action calls this.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = s.records[:0]
	s.line = 0
}

// Line returns the current counter value: the line number of the last
// record handed out, or 0 after a fresh start or Clear.
func (s *Store) Line() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.line
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot returns a copy of the sequence in display order.
func (s *Store) Snapshot() []model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Record, len(s.records))
	copy(out, s.records)
	return out
}
