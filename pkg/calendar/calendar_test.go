package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradingDays(t *testing.T) {
	july4 := Date(2024, time.July, 4)
	c := New(july4)

	assert.True(t, c.IsTradingDay(Date(2024, time.July, 3)))
	assert.False(t, c.IsTradingDay(july4))
	assert.False(t, c.IsTradingDay(Date(2024, time.July, 6)))

	assert.Equal(t, Date(2024, time.July, 5), c.Next(Date(2024, time.July, 3)))
	assert.Equal(t, Date(2024, time.July, 3), c.Prev(Date(2024, time.July, 5)))
	assert.Equal(t, Date(2024, time.July, 5), c.Prev(Date(2024, time.July, 8)))

	days := c.Days(Date(2024, time.July, 1), Date(2024, time.July, 8))
	assert.Equal(t, []time.Time{
		Date(2024, time.July, 1),
		Date(2024, time.July, 2),
		Date(2024, time.July, 3),
		Date(2024, time.July, 5),
		Date(2024, time.July, 8),
	}, days)
	assert.Nil(t, c.Days(Date(2024, time.July, 8), Date(2024, time.July, 1)))
}

func TestDayDropsClock(t *testing.T) {
	loc := time.FixedZone("X", 7*3600)
	got := Day(time.Date(2024, time.March, 2, 23, 15, 0, 0, loc))
	assert.Equal(t, Date(2024, time.March, 2), got)
}

func TestSyncWindow(t *testing.T) {
	c := New()
	friday := Date(2024, time.June, 7)
	monday := Date(2024, time.June, 10)
	tuesday := Date(2024, time.June, 11)
	start := Date(2024, time.January, 2)

	t.Run("friday to monday picks up monday only", func(t *testing.T) {
		w, stale := c.SyncWindow(&friday, start, monday.Add(10*time.Hour))
		require.True(t, stale)
		assert.Equal(t, Date(2024, time.June, 8), w.From)
		assert.Equal(t, monday, w.To)
		assert.Equal(t, []time.Time{monday}, c.Days(w.From, w.To))
	})

	t.Run("fresh after monday is written", func(t *testing.T) {
		_, stale := c.SyncWindow(&monday, start, monday.Add(18*time.Hour))
		assert.False(t, stale)
	})

	t.Run("tuesday behind by one day", func(t *testing.T) {
		w, stale := c.SyncWindow(&friday, start, tuesday)
		require.True(t, stale)
		assert.Equal(t, monday, w.To)
	})

	t.Run("sunday does not synthesize weekend rows", func(t *testing.T) {
		_, stale := c.SyncWindow(&friday, start, Date(2024, time.June, 9))
		assert.False(t, stale)
	})

	t.Run("empty history starts from the configured day", func(t *testing.T) {
		w, stale := c.SyncWindow(nil, start, tuesday)
		require.True(t, stale)
		assert.Equal(t, start, w.From)
		assert.Equal(t, monday, w.To)
	})
}

func TestResample(t *testing.T) {
	type point struct {
		d   time.Time
		key string
	}
	pts := []point{
		{Date(2024, time.January, 30), "a"},
		{Date(2024, time.January, 31), "a"},
		{Date(2024, time.January, 31), "b"},
		{Date(2024, time.February, 1), "a"},
		{Date(2024, time.February, 29), "a"},
	}
	got := Resample(pts, func(p point) time.Time { return p.d }, Monthly)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[1].key)
	assert.Equal(t, Date(2024, time.February, 29), got[2].d)

	assert.Len(t, Resample(pts, func(p point) time.Time { return p.d }, Daily), len(pts))
}

func TestPeriodStart(t *testing.T) {
	d := Date(2024, time.August, 15) // Thursday
	assert.Equal(t, Date(2024, time.August, 12), PeriodStart(d, Weekly))
	assert.Equal(t, Date(2024, time.August, 1), PeriodStart(d, Monthly))
	assert.Equal(t, Date(2024, time.July, 1), PeriodStart(d, Quarterly))
	assert.Equal(t, Date(2024, time.January, 1), PeriodStart(d, Yearly))
	assert.Equal(t, Weekly, NormalizeCadence("weekly"))
	assert.Equal(t, Daily, NormalizeCadence("hourly"))
}
