package store

import (
	"sort"
	"sync"
	"time"

	"github.com/AngelCh415/leadfunnel/internal/models"
)

// MemoryStore accumulates the funnel records of one run. Workers append
// concurrently; readers always get the rows ordered by room id.
type MemoryStore struct {
	mu      sync.RWMutex
	records []models.FunnelRecord
	seen    map[models.RoomID]struct{} // one row per room
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[models.RoomID]struct{})}
}

// MarkSeen claims a room for this run; false if it was already claimed.
func (s *MemoryStore) MarkSeen(id models.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

func (s *MemoryStore) Add(r models.FunnelRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

// Replace swaps in the records of a finished run.
func (s *MemoryStore) Replace(rs []models.FunnelRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]models.FunnelRecord(nil), rs...)
	s.seen = make(map[models.RoomID]struct{}, len(rs))
	for _, r := range rs {
		s.seen[r.RoomID] = struct{}{}
	}
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) All() []models.FunnelRecord {
	s.mu.RLock()
	out := append([]models.FunnelRecord(nil), s.records...)
	s.mu.RUnlock()
	sortByRoom(out)
	return out
}

// Query returns records whose lead date falls in [from, to]; a zero bound is
// open. f, when set, filters further.
func (s *MemoryStore) Query(from, to time.Time, f func(models.FunnelRecord) bool) []models.FunnelRecord {
	s.mu.RLock()
	var out []models.FunnelRecord
	for _, r := range s.records {
		d := day(r.LeadsDate)
		if !from.IsZero() && d.Before(day(from)) {
			continue
		}
		if !to.IsZero() && d.After(day(to)) {
			continue
		}
		if f == nil || f(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	sortByRoom(out)
	return out
}

func sortByRoom(rs []models.FunnelRecord) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].RoomID.Less(rs[j].RoomID) })
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
