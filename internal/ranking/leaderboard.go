package ranking

import (
	"sort"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/models"
)

// Leaderboard sizes are fixed per category.
const (
	ActiveLimit  = 5
	PassiveLimit = 10
)

func LimitFor(category models.Category) int {
	switch category {
	case models.CategoryActive:
		return ActiveLimit
	case models.CategoryPassive:
		return PassiveLimit
	default:
		return 0
	}
}

type Entry struct {
	Rank    int               `json:"rank"`
	Display string            `json:"display"`
	Fund    models.FundRecord `json:"fund"`
}

// LeaderboardView is a ranked, truncated view of one category. It is derived
// from a snapshot on every call and never updated in place.
type LeaderboardView struct {
	Category models.Category `json:"category"`
	Metric   Metric          `json:"metric"`
	Entries  []Entry         `json:"entries"`
}

// Records returns the ranked records in rank order.
func (v LeaderboardView) Records() []models.FundRecord {
	out := make([]models.FundRecord, len(v.Entries))
	for i, e := range v.Entries {
		out[i] = e.Fund
	}
	return out
}

// Build ranks the records of one category by metric, descending, and keeps the
// first limit entries. Equal values keep their snapshot order.
func Build(snapshot models.Snapshot, category models.Category, metric Metric, limit int) LeaderboardView {
	view := LeaderboardView{Category: category, Metric: metric, Entries: []Entry{}}
	if limit <= 0 {
		return view
	}

	filtered := make([]models.FundRecord, 0, len(snapshot))
	for _, rec := range snapshot {
		if rec.Category == category {
			filtered = append(filtered, rec)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return metric.SortKey(filtered[i]).GreaterThan(metric.SortKey(filtered[j]))
	})

	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	view.Entries = make([]Entry, len(filtered))
	for i, rec := range filtered {
		view.Entries[i] = Entry{
			Rank:    i + 1,
			Display: FormatPercent(metric, rec),
			Fund:    rec.Clone(),
		}
	}
	return view
}

// BuildDefault uses the fixed policy limit for the category.
func BuildDefault(snapshot models.Snapshot, category models.Category, metric Metric) LeaderboardView {
	return Build(snapshot, category, metric, LimitFor(category))
}
