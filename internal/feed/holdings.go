package feed

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/models"
)

// Notes use the same markers as the data job that publishes the feed.
const (
	NoteUnchanged = "-"
	NoteNew       = "🆕新進"
	markUp        = "🔺"
	markDown      = "🔻"
)

var changeThreshold = decimal.New(1, -3)

// AnnotateHoldingChanges fills in missing change notes by comparing weights
// with the previous holdings list. Notes already supplied by the feed win.
// ChangeValue carries the weight difference, or the full weight for a new
// position.
func AnnotateHoldingChanges(next, prev []models.Holding) []models.Holding {
	if next == nil {
		return nil
	}
	previous := make(map[string]decimal.Decimal, len(prev))
	for _, h := range prev {
		previous[h.Stock] = h.Percent
	}

	out := make([]models.Holding, len(next))
	for i, h := range next {
		out[i] = h
		if note := strings.TrimSpace(h.ChangeNote); note != "" && note != NoteUnchanged {
			continue
		}
		old, ok := previous[h.Stock]
		if !ok {
			out[i].ChangeNote = NoteNew
			out[i].ChangeValue = decimal.NewNullDecimal(h.Percent)
			continue
		}
		out[i].ChangeNote, out[i].ChangeValue = change(h.Percent.Sub(old))
	}
	return out
}

func change(diff decimal.Decimal) (string, decimal.NullDecimal) {
	if diff.Abs().LessThanOrEqual(changeThreshold) {
		return NoteUnchanged, decimal.NewNullDecimal(decimal.Zero)
	}
	if diff.IsPositive() {
		return markUp + diff.StringFixed(2) + "%", decimal.NewNullDecimal(diff)
	}
	return markDown + diff.Abs().StringFixed(2) + "%", decimal.NewNullDecimal(diff)
}

// AnnotateSnapshot applies AnnotateHoldingChanges per fund, pairing funds by
// ticker. A fund missing from prev has all its holdings marked new. With no
// previous snapshot at all the feed's own notes are returned untouched.
func AnnotateSnapshot(next, prev models.Snapshot) models.Snapshot {
	if len(prev) == 0 {
		return next
	}
	byTicker := make(map[string][]models.Holding, len(prev))
	for _, rec := range prev {
		byTicker[rec.Ticker] = rec.Holdings
	}

	out := make(models.Snapshot, len(next))
	for i, rec := range next {
		out[i] = rec
		out[i].Holdings = AnnotateHoldingChanges(rec.Holdings, byTicker[rec.Ticker])
	}
	return out
}
