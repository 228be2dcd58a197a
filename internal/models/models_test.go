package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFundIDAcceptsNumbersAndStrings(t *testing.T) {
	var ids []FundID
	require.NoError(t, json.Unmarshal([]byte(`[7, " 8 ", null]`), &ids))
	assert.Equal(t, []FundID{"7", "8", ""}, ids)

	var bad FundID
	assert.Error(t, json.Unmarshal([]byte(`true`), &bad))
}

func TestFundRecordDecodesFeedFields(t *testing.T) {
	raw := `{
		"id": 3, "ticker": "00981A", "name": "Growth", "type": "active",
		"manager": "Chen", "fundManager": "N/A",
		"ytdReturn": 12.345, "latestNav": 15.2,
		"custodianBank": "N/A", "foundedDate": " 2025-05-27 ",
		"holdings": [{"stock": "TSMC", "percent": 9.5, "change": "-"}],
		"performanceData": [{"month": "Jan", "return": 1.5}]
	}`
	var rec FundRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))

	assert.Equal(t, FundID("3"), rec.ID)
	assert.Equal(t, CategoryActive, rec.Category)
	assert.Equal(t, "Chen", rec.Manager)
	assert.Empty(t, rec.Custodian)
	assert.Equal(t, "2025-05-27", rec.FoundedDate)
	assert.True(t, rec.YTDReturn.Equal(decimal.RequireFromString("12.345")))
	assert.False(t, rec.WeeklyReturn.Valid)
	require.Len(t, rec.Holdings, 1)
	assert.Equal(t, "TSMC", rec.Holdings[0].Stock)
	require.Len(t, rec.Trend, 1)
	assert.Equal(t, "Jan", rec.Trend[0].Period)
}

func TestFundRecordPrefersFundManager(t *testing.T) {
	var rec FundRecord
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","fundManager":"Lin","manager":"Chen"}`), &rec))
	assert.Equal(t, "Lin", rec.Manager)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Passive ")
	require.NoError(t, err)
	assert.Equal(t, CategoryPassive, c)

	_, err = ParseCategory("hybrid")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestSnapshotPartitionKeepsOrder(t *testing.T) {
	snap := Snapshot{
		{ID: "1", Category: CategoryPassive},
		{ID: "2", Category: CategoryActive},
		{ID: "3", Category: CategoryPassive},
		{ID: "4", Category: "hybrid"},
	}
	active, passive := snap.Partition()
	require.Len(t, active, 1)
	assert.Equal(t, FundID("2"), active[0].ID)
	require.Len(t, passive, 2)
	assert.Equal(t, FundID("1"), passive[0].ID)
	assert.Equal(t, FundID("3"), passive[1].ID)

	rec, ok := snap.Find("3")
	assert.True(t, ok)
	assert.Equal(t, CategoryPassive, rec.Category)
	_, ok = snap.Find("9")
	assert.False(t, ok)
}

func TestCloneDoesNotShareSlices(t *testing.T) {
	rec := FundRecord{ID: "1", Holdings: []Holding{{Stock: "TSMC"}}}
	cp := rec.Clone()
	cp.Holdings[0].Stock = "MediaTek"
	assert.Equal(t, "TSMC", rec.Holdings[0].Stock)
}

func TestNumericFundIDsAreCanonical(t *testing.T) {
	var ids []FundID
	require.NoError(t, json.Unmarshal([]byte(`[1, 1.0, 1e0, 12.50]`), &ids))
	assert.Equal(t, []FundID{"1", "1", "1", "12.5"}, ids)
}

func TestHoldingKeepsChangeValue(t *testing.T) {
	var h Holding
	require.NoError(t, json.Unmarshal([]byte(`{"stock":"A","percent":1,"change":"-","changeVal":0.5}`), &h))
	require.True(t, h.ChangeValue.Valid)
	assert.True(t, h.ChangeValue.Decimal.Equal(decimal.RequireFromString("0.5")))

	out, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"changeVal":"0.5"`)

	var bare Holding
	require.NoError(t, json.Unmarshal([]byte(`{"stock":"B","percent":2}`), &bare))
	assert.False(t, bare.ChangeValue.Valid)
}

func searchSnapshot() Snapshot {
	return Snapshot{
		{ID: "1", Ticker: "0050", Name: "元大台灣50"},
		{ID: "2", Ticker: "00981A", Name: "主動統一台股增長"},
		{ID: "3", Ticker: "0056", Name: "元大高股息"},
		{ID: "4", Ticker: "00878", Name: "國泰永續高股息"},
	}
}

func TestSearchEmptyTermReturnsAll(t *testing.T) {
	snap := searchSnapshot()
	got := snap.Search("  ")
	assert.Equal(t, snap, got)
}

func TestSearchMatchesNameTickerAndID(t *testing.T) {
	snap := searchSnapshot()

	byName := snap.Search("高股息")
	require.Len(t, byName, 2)
	assert.Equal(t, FundID("3"), byName[0].ID)
	assert.Equal(t, FundID("4"), byName[1].ID)

	byTicker := snap.Search("981a")
	require.Len(t, byTicker, 1)
	assert.Equal(t, FundID("2"), byTicker[0].ID)

	byID := snap.Search("4")
	require.Len(t, byID, 1)
	assert.Equal(t, "00878", byID[0].Ticker)
}

func TestSearchNoMatch(t *testing.T) {
	got := searchSnapshot().Search("bond")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
