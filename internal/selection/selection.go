package selection

import (
	"errors"
	"fmt"
	"sync"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/models"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/refresh"
)

// ErrNotFound is returned when the id is not part of the latest good snapshot.
var ErrNotFound = errors.New("fund not found")

// Source exposes the refresh state; *refresh.Controller satisfies it.
type Source interface {
	State() refresh.State
}

// Selection holds the one record currently being inspected.
type Selection struct {
	source Source

	mu       sync.RWMutex
	current  models.FundRecord
	selected bool
}

func New(source Source) *Selection {
	return &Selection{source: source}
}

// Lookup resolves an id against the latest good snapshot without changing the selection.
func (s *Selection) Lookup(id models.FundID) (models.FundRecord, error) {
	st := s.source.State()
	if !st.HasSnapshot {
		return models.FundRecord{}, fmt.Errorf("%w: %s (no snapshot loaded)", ErrNotFound, id)
	}
	rec, ok := st.Snapshot.Find(id)
	if !ok {
		return models.FundRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// Select makes id the inspected record. A miss leaves the selection as it was.
func (s *Selection) Select(id models.FundID) (models.FundRecord, error) {
	rec, err := s.Lookup(id)
	if err != nil {
		return models.FundRecord{}, err
	}
	s.mu.Lock()
	s.current = rec
	s.selected = true
	s.mu.Unlock()
	return rec.Clone(), nil
}

func (s *Selection) Clear() {
	s.mu.Lock()
	s.current = models.FundRecord{}
	s.selected = false
	s.mu.Unlock()
}

func (s *Selection) Current() (models.FundRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.selected {
		return models.FundRecord{}, false
	}
	return s.current.Clone(), true
}
