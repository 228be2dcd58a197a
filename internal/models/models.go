package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnknownCategory is returned when a category token is neither active nor passive.
var ErrUnknownCategory = errors.New("unknown fund category")

type Category string

const (
	CategoryActive  Category = "active"
	CategoryPassive Category = "passive"
)

// Categories lists every valid category in display order.
var Categories = []Category{CategoryActive, CategoryPassive}

func (c Category) Valid() bool {
	return c == CategoryActive || c == CategoryPassive
}

func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
	}
	return c, nil
}

// Holding is one constituent of a fund as published by the feed.
type Holding struct {
	Stock       string              `json:"stock"`
	Percent     decimal.Decimal     `json:"percent"`
	ChangeNote  string              `json:"change"`
	ChangeValue decimal.NullDecimal `json:"changeVal"`
}

// TrendPoint is a point of the detail-view performance chart.
type TrendPoint struct {
	Period string          `json:"month"`
	Value  decimal.Decimal `json:"return"`
}

// FundRecord is the latest snapshot of a single fund. Records are treated as
// immutable once they are part of a published Snapshot.
type FundRecord struct {
	ID           FundID              `json:"id"`
	Name         string              `json:"name"`
	Ticker       string              `json:"ticker"`
	Category     Category            `json:"type"`
	LatestNAV    decimal.Decimal     `json:"latestNav"`
	YTDReturn    decimal.Decimal     `json:"ytdReturn"`
	WeeklyReturn decimal.NullDecimal `json:"weeklyReturn"`
	Manager      string              `json:"fundManager,omitempty"`
	Index        string              `json:"index,omitempty"`
	FoundedDate  string              `json:"foundedDate,omitempty"`
	DividendFreq string              `json:"dividendFreq,omitempty"`
	Custodian    string              `json:"custodianBank,omitempty"`
	DataStatus   string              `json:"changeStatus,omitempty"`
	Holdings     []Holding           `json:"holdings"`
	Trend        []TrendPoint        `json:"performanceData"`
}

// UnmarshalJSON accepts the feed's field aliases and drops "N/A" placeholders.
func (f *FundRecord) UnmarshalJSON(data []byte) error {
	type plain FundRecord
	var aux struct {
		plain
		LegacyManager string `json:"manager"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*f = FundRecord(aux.plain)
	if f.Manager == "" || isPlaceholder(f.Manager) {
		f.Manager = aux.LegacyManager
	}
	f.Manager = clean(f.Manager)
	f.Index = clean(f.Index)
	f.FoundedDate = clean(f.FoundedDate)
	f.DividendFreq = clean(f.DividendFreq)
	f.Custodian = clean(f.Custodian)
	return nil
}

// Clone returns a deep copy so callers can hand records out without sharing slices.
func (f FundRecord) Clone() FundRecord {
	out := f
	if f.Holdings != nil {
		out.Holdings = append([]Holding(nil), f.Holdings...)
	}
	if f.Trend != nil {
		out.Trend = append([]TrendPoint(nil), f.Trend...)
	}
	return out
}

// Snapshot is the full collection of records returned by one refresh.
type Snapshot []FundRecord

// Find returns the record with the given id.
func (s Snapshot) Find(id FundID) (FundRecord, bool) {
	for _, rec := range s {
		if rec.ID == id {
			return rec, true
		}
	}
	return FundRecord{}, false
}

// Search returns the records whose name, ticker or id contains term, in
// snapshot order. Matching ignores case; an empty term matches everything.
func (s Snapshot) Search(term string) Snapshot {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make(Snapshot, 0, len(s))
	for _, rec := range s {
		if term == "" ||
			strings.Contains(strings.ToLower(rec.Name), term) ||
			strings.Contains(strings.ToLower(rec.Ticker), term) ||
			strings.Contains(strings.ToLower(string(rec.ID)), term) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Partition splits the snapshot by category, keeping snapshot order.
func (s Snapshot) Partition() (active, passive Snapshot) {
	active = make(Snapshot, 0, len(s))
	passive = make(Snapshot, 0, len(s))
	for _, rec := range s {
		switch rec.Category {
		case CategoryActive:
			active = append(active, rec)
		case CategoryPassive:
			passive = append(passive, rec)
		}
	}
	return active, passive
}

// FundID is the feed identifier. The data job writes numeric ids, hand-edited
// files sometimes use strings; both decode to the same value. Numeric ids are
// canonicalised, so 1, 1.0 and 1e0 are the same fund.
type FundID string

func (id *FundID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FundID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("fund id must be a string or number: %w", err)
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return fmt.Errorf("fund id %s: %w", n, err)
	}
	*id = FundID(d.String())
	return nil
}

func isPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	return s == "N/A" || s == "-"
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	if isPlaceholder(s) {
		return ""
	}
	return s
}
