package repository

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"PortfolioHistory/internal/domain/models"
	"PortfolioHistory/pkg/calendar"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventWhere(t *testing.T) {
	from := calendar.Date(2024, 1, 1)
	to := calendar.Date(2024, 12, 31)

	where, args := eventWhere([]string{"symbol"}, models.EventFilter{Symbols: []string{"AAA", "BBB"}, From: &from, To: &to})
	assert.Equal(t, "WHERE symbol IN (?, ?) AND date >= ? AND date <= ?", where)
	assert.Equal(t, []any{"AAA", "BBB", from, to}, args)

	where, args = eventWhere([]string{"target", "acquirer"}, models.EventFilter{Symbols: []string{"AAA"}})
	assert.Equal(t, "WHERE (target IN (?) OR acquirer IN (?))", where)
	assert.Equal(t, []any{"AAA", "AAA"}, args)

	where, args = eventWhere([]string{"symbol"}, models.EventFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestHistoryWhere(t *testing.T) {
	from := calendar.Date(2024, 6, 1)
	where, args := historyWhere("sector", models.HistoryQuery{Keys: []string{"Tech"}, From: &from})
	assert.Equal(t, "WHERE sector IN (?) AND date >= ?", where)
	assert.Equal(t, []any{"Tech", from}, args)
}

func TestChunkByDateNeverSplitsADate(t *testing.T) {
	type r struct{ date time.Time }
	var rows []r
	for day := 1; day <= 5; day++ {
		for i := 0; i < day; i++ { // 1+2+3+4+5 rows
			rows = append(rows, r{calendar.Date(2024, 1, day)})
		}
	}
	chunks := ChunkByDate(rows, 3, func(x r) time.Time { return x.date })

	total := 0
	seen := make(map[time.Time]int)
	for i, c := range chunks {
		total += len(c)
		if i < len(chunks)-1 {
			assert.GreaterOrEqual(t, len(c), 3)
		}
		for _, x := range c {
			seen[x.date] |= 1 << i
		}
	}
	assert.Equal(t, len(rows), total)
	for date, mask := range seen {
		assert.Equal(t, 0, mask&(mask-1), "date %s spans chunks", date)
	}

	assert.Nil(t, ChunkByDate([]r(nil), 3, func(x r) time.Time { return x.date }))
	assert.Len(t, ChunkByDate(rows, 0, func(x r) time.Time { return x.date }), 1)
}

func TestFilterAbsent(t *testing.T) {
	d := calendar.Date(2024, 1, 2)
	rows := []models.AggregateRow{
		{Date: d, DimensionValue: "Tech"},
		{Date: d, DimensionValue: "Energy"},
	}
	existing := map[rowKey]struct{}{{d, "Tech"}: {}}
	got := filterAbsent(rows, existing, func(r models.AggregateRow) rowKey { return rowKey{r.Date, r.DimensionValue} })
	require.Len(t, got, 1)
	assert.Equal(t, "Energy", got[0].DimensionValue)
}

func TestSpan(t *testing.T) {
	dates := []time.Time{calendar.Date(2024, 1, 3), calendar.Date(2024, 1, 1), calendar.Date(2024, 1, 9)}
	w := span(dates, func(t time.Time) time.Time { return t })
	require.NotNil(t, w)
	assert.Equal(t, calendar.Date(2024, 1, 1), w.From)
	assert.Equal(t, calendar.Date(2024, 1, 9), w.To)
	assert.Nil(t, span([]time.Time(nil), func(t time.Time) time.Time { return t }))
}

func TestResolveAccountType(t *testing.T) {
	assert.Equal(t, "", ResolveAccountType(nil))
	assert.Equal(t, "IRA", ResolveAccountType([]string{"IRA"}))
	assert.Equal(t, models.AccountTypeAgnostic, ResolveAccountType([]string{"IRA", "Taxable"}))
}

func TestSchemaCoversEveryDimension(t *testing.T) {
	stmts := SchemaStatements()
	joined := strings.Join(stmts, "\n")
	for _, dim := range models.AllDimensions() {
		desc := dim.Descriptor()
		assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS "+desc.Table+" (")
	}
	assert.Contains(t, HistoryTableDDL(models.DimensionSector), "ORDER BY (date, sector)")
	assert.Contains(t, HistoryTableDDL(models.DimensionAsset), "percent_return Nullable(Decimal(38, 10))")
}

func TestNullableDecimals(t *testing.T) {
	assert.Nil(t, nullable(decimal.NullDecimal{}))
	assert.Equal(t, decimal.RequireFromString("1.5"), nullable(decimal.NewNullDecimal(decimal.RequireFromString("1.5"))))

	got, err := parseNull(sql.NullString{String: "2.25", Valid: true})
	require.NoError(t, err)
	assert.True(t, got.Valid)
	assert.True(t, decimal.RequireFromString("2.25").Equal(got.Decimal))

	got, err = parseNull(sql.NullString{})
	require.NoError(t, err)
	assert.False(t, got.Valid)

	_, err = parseNull(sql.NullString{String: "nope", Valid: true})
	assert.Error(t, err)
}
