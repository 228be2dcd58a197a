package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/models"
)

// Decode reads one snapshot: a JSON array of fund records and nothing else.
func Decode(r io.Reader) (models.Snapshot, error) {
	dec := json.NewDecoder(r)
	var snapshot models.Snapshot
	if err := dec.Decode(&snapshot); err != nil {
		return nil, &ParseError{Err: err}
	}
	if snapshot == nil {
		return nil, &ParseError{Err: errors.New("payload is null, expected an array")}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ParseError{Err: errors.New("trailing data after array")}
	}
	return snapshot, nil
}

// Validate checks the invariants every record of a snapshot must hold.
func Validate(snapshot models.Snapshot) error {
	seen := make(map[models.FundID]int, len(snapshot))
	for i, rec := range snapshot {
		fail := func(format string, args ...any) error {
			return &ValidationError{Index: i, ID: string(rec.ID), Reason: fmt.Sprintf(format, args...)}
		}

		if rec.ID == "" {
			return fail("missing id")
		}
		if prev, ok := seen[rec.ID]; ok {
			return fail("duplicate id, first seen at record %d", prev)
		}
		seen[rec.ID] = i

		if !rec.Category.Valid() {
			return fail("invalid category %q", rec.Category)
		}
		if rec.Category == models.CategoryActive && rec.Manager == "" {
			return fail("active fund without manager")
		}
		if rec.LatestNAV.IsNegative() {
			return fail("negative nav %s", rec.LatestNAV)
		}
		for _, h := range rec.Holdings {
			if h.Percent.IsNegative() {
				return fail("holding %q has negative weight %s", h.Stock, h.Percent)
			}
		}
	}
	return nil
}
