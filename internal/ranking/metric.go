package ranking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/models"
)

// ErrUnknownRange is returned for time-range tokens other than year and week.
var ErrUnknownRange = errors.New("unknown time range")

type Field string

const (
	FieldYTDReturn    Field = "ytdReturn"
	FieldWeeklyReturn Field = "weeklyReturn"
)

const (
	RangeYear = "year"
	RangeWeek = "week"
)

// NoData is shown instead of a percentage when the ranked field is absent.
const NoData = "no data"

// Metric names the record field a leaderboard is ranked by.
type Metric struct {
	Range string `json:"range"`
	Field Field  `json:"field"`
	Label string `json:"label"`
}

var (
	metricYear = Metric{Range: RangeYear, Field: FieldYTDReturn, Label: "YTD"}
	metricWeek = Metric{Range: RangeWeek, Field: FieldWeeklyReturn, Label: "1W"}
)

// SelectMetric maps a time-range token to the field used for ranking.
func SelectMetric(rangeToken string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(rangeToken)) {
	case RangeYear:
		return metricYear, nil
	case RangeWeek:
		return metricWeek, nil
	default:
		return Metric{}, fmt.Errorf("%w: %q", ErrUnknownRange, rangeToken)
	}
}

// Value returns the metric as stored on the record; present is false when the
// feed did not supply it.
func (m Metric) Value(rec models.FundRecord) (v decimal.Decimal, present bool) {
	switch m.Field {
	case FieldYTDReturn:
		return rec.YTDReturn, true
	case FieldWeeklyReturn:
		if !rec.WeeklyReturn.Valid {
			return decimal.Zero, false
		}
		return rec.WeeklyReturn.Decimal, true
	default:
		return decimal.Zero, false
	}
}

// SortKey is the comparison value: an absent metric counts as zero.
func (m Metric) SortKey(rec models.FundRecord) decimal.Decimal {
	v, _ := m.Value(rec)
	return v
}

// FormatPercent renders the metric for display, e.g. "+12.34%" or "no data".
func FormatPercent(m Metric, rec models.FundRecord) string {
	v, ok := m.Value(rec)
	if !ok {
		return NoData
	}
	s := v.StringFixed(2)
	if v.IsPositive() {
		s = "+" + s
	}
	return s + "%"
}
