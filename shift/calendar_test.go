package shift_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/barstock/shift"
)

func mexicoCity(t *testing.T) *time.Location {
	t.Helper()
	loc := time.FixedZone("CST", -6*60*60)
	return loc
}

func TestIDFor_BeforeOpening_BelongsToPreviousDay(t *testing.T) {
	cal := shift.NewCalendar(mexicoCity(t))
	loc := cal.Location

	for hour := 0; hour < 16; hour++ {
		at := time.Date(2025, time.March, 11, hour, 30, 0, 0, loc)
		assert.Equal(t, shift.ID("2025-03-10"), cal.IDFor(at), "hour %d", hour)
	}
}

func TestIDFor_AfterOpening_BelongsToSameDay(t *testing.T) {
	cal := shift.NewCalendar(mexicoCity(t))
	loc := cal.Location

	for hour := 16; hour < 24; hour++ {
		at := time.Date(2025, time.March, 11, hour, 0, 0, 0, loc)
		assert.Equal(t, shift.ID("2025-03-11"), cal.IDFor(at), "hour %d", hour)
	}
}

func TestIDFor_UsesCalendarZoneNotUTC(t *testing.T) {
	// GIVEN: 23:00 local on Mar 10 is 05:00 UTC on Mar 11
	// THEN: the shift is still Mar 10
	cal := shift.NewCalendar(mexicoCity(t))
	at := time.Date(2025, time.March, 11, 5, 0, 0, 0, time.UTC)

	assert.Equal(t, shift.ID("2025-03-10"), cal.IDFor(at))
}

func TestIDFor_CrossesMonthAndYear(t *testing.T) {
	cal := shift.NewCalendar(time.UTC)

	assert.Equal(t, shift.ID("2024-12-31"), cal.IDFor(time.Date(2025, time.January, 1, 2, 0, 0, 0, time.UTC)))
	assert.Equal(t, shift.ID("2025-02-28"), cal.IDFor(time.Date(2025, time.March, 1, 1, 0, 0, 0, time.UTC)))
}

func TestWindow_SpansFourPMToThreeAM(t *testing.T) {
	cal := shift.NewCalendar(time.UTC)
	w := cal.Window("2025-03-10")

	assert.Equal(t, time.Date(2025, time.March, 10, 16, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2025, time.March, 11, 3, 0, 0, 0, time.UTC), w.End)

	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(time.Date(2025, time.March, 11, 2, 59, 0, 0, time.UTC)))
	assert.False(t, w.Contains(w.End))
	assert.False(t, w.Contains(time.Date(2025, time.March, 11, 9, 0, 0, 0, time.UTC)))
}

func TestWindow_EveryInstantInWindowMapsBack(t *testing.T) {
	cal := shift.NewCalendar(time.UTC)
	id := shift.ID("2025-06-30")
	w := cal.Window(id)

	for at := w.Start; at.Before(w.End); at = at.Add(17 * time.Minute) {
		assert.Equal(t, id, cal.IDFor(at), "at %s", at)
	}
}

func TestWindow_MalformedID(t *testing.T) {
	cal := shift.NewCalendar(time.UTC)
	assert.Equal(t, shift.Window{}, cal.Window("not-a-date"))
}

func TestParseID(t *testing.T) {
	id, err := shift.ParseID("2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, shift.ID("2025-03-10"), id)
	assert.Equal(t, shift.ID("2025-03-09"), id.Prev())
	assert.Equal(t, shift.ID("2025-03-11"), id.Next())

	_, err = shift.ParseID("10/03/2025")
	assert.Error(t, err)
}
