package refresh

import (
	"time"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/models"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// State is an immutable view of the controller.
//
// Snapshot always holds the latest successfully fetched snapshot, if any.
// While Ready it is the result of the attempt with sequence Seq; while Loading
// or Failed it is the stale snapshot kept from an earlier attempt. Active and
// Passive are its category halves, computed once when it landed.
type State struct {
	Status      Status          `json:"status"`
	Seq         uint64          `json:"seq"`
	Reason      string          `json:"reason,omitempty"`
	Snapshot    models.Snapshot `json:"-"`
	Active      models.Snapshot `json:"-"`
	Passive     models.Snapshot `json:"-"`
	FetchedAt   time.Time       `json:"fetchedAt,omitempty"`
	HasSnapshot bool            `json:"hasSnapshot"`
}

// carry returns a state with the given status that keeps s's snapshot.
func (s State) carry(status Status, seq uint64) State {
	return State{
		Status:      status,
		Seq:         seq,
		Snapshot:    s.Snapshot,
		Active:      s.Active,
		Passive:     s.Passive,
		FetchedAt:   s.FetchedAt,
		HasSnapshot: s.HasSnapshot,
	}
}

// Board returns the category half of the snapshot.
func (s State) Board(category models.Category) models.Snapshot {
	if category == models.CategoryPassive {
		return s.Passive
	}
	return s.Active
}

// Stale reports whether the visible snapshot comes from an earlier attempt.
func (s State) Stale() bool {
	return s.HasSnapshot && s.Status != StatusReady
}

// Age is the time since the visible snapshot was fetched.
func (s State) Age(now time.Time) time.Duration {
	if !s.HasSnapshot {
		return 0
	}
	return now.Sub(s.FetchedAt)
}
