package roster

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/drmas001/imd-v2.8/internal/consultation"
	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/metrics"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
	"github.com/drmas001/imd-v2.8/internal/ward/domain"
)

// WardSource is the slice of the ward repository the roster reads
// and writes through.
type WardSource interface {
	FindActiveAdmissions(ctx context.Context) ([]*domain.Admission, error)
	FindAdmissionByID(ctx context.Context, id types.ID) (*domain.Admission, error)
	DischargeWithNote(ctx context.Context, a *domain.Admission, noteContent string, authorID types.ID) error
}

// ConsultationSource is the slice of the consultation repository the
// roster reads and writes through.
type ConsultationSource interface {
	FindActive(ctx context.Context) ([]consultation.Consultation, error)
	Get(ctx context.Context, id int64) (*consultation.Consultation, error)
	CompleteWithNote(ctx context.Context, c *consultation.Consultation, noteContent string) error
}

// Service holds the in-memory roster: the concatenation of active
// admissions and active consultations, refreshed as a whole from
// storage. Per-user selections reference entries by key and are
// reconciled against every refresh, so a selection can never point at
// a row that has left the roster.
type Service struct {
	ward    WardSource
	consult ConsultationSource

	// refreshMu serializes full refreshes so overlapping triggers
	// cannot interleave their fetch and swap phases.
	refreshMu sync.Mutex

	mu          sync.RWMutex
	entries     []Entry
	byKey       map[string]int
	refreshedAt time.Time
	selections  map[types.ID]string
}

func NewService(ward WardSource, consult ConsultationSource) *Service {
	return &Service{
		ward:       ward,
		consult:    consult,
		byKey:      make(map[string]int),
		selections: make(map[types.ID]string),
	}
}

// Refresh re-fetches both sources and atomically replaces the roster.
// The order is always admissions first, then consultations; within
// each block the storage ordering is preserved. Selections whose key
// is absent from the new roster are cleared.
func (s *Service) Refresh(ctx context.Context, trigger string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	admissions, err := s.ward.FindActiveAdmissions(ctx)
	if err != nil {
		return err
	}
	consultations, err := s.consult.FindActive(ctx)
	if err != nil {
		return err
	}

	entries := make([]Entry, 0, len(admissions)+len(consultations))
	for _, a := range admissions {
		entries = append(entries, AdmissionEntry(a))
	}
	for i := range consultations {
		entries = append(entries, ConsultationEntry(&consultations[i]))
	}

	byKey := make(map[string]int, len(entries))
	for i, e := range entries {
		byKey[e.Key] = i
	}

	s.mu.Lock()
	added, removed := 0, 0
	for key := range byKey {
		if _, ok := s.byKey[key]; !ok {
			added++
		}
	}
	for key := range s.byKey {
		if _, ok := byKey[key]; !ok {
			removed++
		}
	}
	cleared := 0
	for userID, key := range s.selections {
		if _, ok := byKey[key]; !ok {
			delete(s.selections, userID)
			cleared++
		}
	}
	s.entries = entries
	s.byKey = byKey
	s.refreshedAt = time.Now()
	s.mu.Unlock()

	metrics.RecordRosterSize(len(admissions), len(consultations))
	metrics.RecordRosterRefresh(trigger)
	log.Printf("Roster refreshed (%s): %d admissions, %d consultations, %d added, %d removed, %d selections cleared",
		trigger, len(admissions), len(consultations), added, removed, cleared)
	return nil
}

// Snapshot returns a copy of the current roster and the time it was
// last refreshed.
func (s *Service) Snapshot() ([]Entry, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, s.refreshedAt
}

// EntryByKey looks up a single roster entry.
func (s *Service) EntryByKey(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byKey[key]
	if !ok {
		return Entry{}, false
	}
	return s.entries[idx], true
}

// Select records the user's selected entry and returns it. Selecting
// a key that is not on the current roster fails.
func (s *Service) Select(userID types.ID, key string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byKey[key]
	if !ok {
		return Entry{}, errors.NotFound("roster entry", key)
	}
	s.selections[userID] = key
	return s.entries[idx], nil
}

// Selection resolves the user's current selection against the live
// roster. The second return is false when nothing is selected.
func (s *Service) Selection(userID types.ID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.selections[userID]
	if !ok {
		return Entry{}, false
	}
	idx, ok := s.byKey[key]
	if !ok {
		return Entry{}, false
	}
	return s.entries[idx], true
}

// ClearSelection drops the user's selection if any.
func (s *Service) ClearSelection(userID types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.selections, userID)
}
