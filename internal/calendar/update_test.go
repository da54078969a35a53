package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eventcal/internal/model"
)

func TestUpdateEvent_LocationOnly(t *testing.T) {
	cal := New("Work")
	ev := newSingle(t, "Review", mon, model.Clock(9, 0), model.Clock(10, 0), nil)
	require.NoError(t, cal.CreateEvent(ev))
	id := ev.ID()

	first := new(mockListener)
	second := new(mockListener)
	first.On("OnEventModified", ev).Return().Once()
	second.On("OnEventModified", ev).Return().Once()
	cal.AddListener(first)
	cal.AddListener(second)
	cal.AddListener(first)

	require.NoError(t, cal.UpdateEvent(ev, model.Patch{Location: model.Ptr("Room 4")}, nil))

	assert.Equal(t, id, ev.ID())
	assert.Equal(t, "Room 4", ev.Location())
	got, ok := cal.GetEvent("Review", mon, model.Clock(9, 0))
	require.True(t, ok)
	assert.Same(t, ev, got)
	assert.Equal(t, 1, cal.Len())
	assert.Len(t, cal.daily[mon], 1)

	first.AssertExpectations(t)
	second.AssertExpectations(t)
	first.AssertNumberOfCalls(t, "OnEventModified", 1)
	second.AssertNumberOfCalls(t, "OnEventModified", 1)
	first.AssertNotCalled(t, "OnEventAdded", mock.Anything)
}

func TestUpdateEvent_ConflictIsRejected(t *testing.T) {
	cal := New("Work")
	standup := newSingle(t, "Standup", mon, model.Clock(9, 0), model.Clock(10, 0), nil)
	review := newSingle(t, "Review", mon, model.Clock(11, 0), model.Clock(12, 0), nil)
	require.NoError(t, cal.CreateEvent(standup))
	require.NoError(t, cal.CreateEvent(review))
	listener := new(mockListener)
	cal.AddListener(listener)
	before := snap(cal)

	err := cal.UpdateEvent(review, model.Patch{
		StartTime: model.Ptr(model.Clock(9, 30)),
		EndTime:   model.Ptr(model.Clock(10, 30)),
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidUpdate)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "Conflicting with existing event", err.Error())

	assert.Equal(t, before, snap(cal))
	got, ok := cal.GetEvent("Review", mon, model.Clock(11, 0))
	require.True(t, ok)
	assert.Same(t, review, got)
	assert.Equal(t, model.Clock(11, 0), review.StartTime())
	assert.Equal(t, model.Clock(12, 0), review.EndTime())
	listener.AssertNotCalled(t, "OnEventModified", mock.Anything)
}

func TestUpdateEvent_InvalidShape(t *testing.T) {
	cal := New("Work")
	ev := newSingle(t, "Review", mon, model.Clock(9, 0), model.Clock(10, 0), nil)
	require.NoError(t, cal.CreateEvent(ev))
	before := snap(cal)

	err := cal.UpdateEvent(ev, model.Patch{EndTime: model.Ptr(model.Clock(8, 0))}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidUpdate)
	assert.ErrorIs(t, err, model.ErrInvalidEvent)
	assert.Equal(t, "End time cannot be before start time", err.Error())
	assert.Equal(t, before, snap(cal))
}

func TestUpdateEvent_MovesKey(t *testing.T) {
	cal := New("Work")
	ev := newSingle(t, "Review", mon, model.Clock(9, 0), model.Clock(10, 0), nil)
	require.NoError(t, cal.CreateEvent(ev))

	require.NoError(t, cal.UpdateEvent(ev, model.Patch{
		Subject:   model.Ptr("Retro"),
		StartDate: &wed,
		EndDate:   &wed,
	}, nil))

	_, ok := cal.GetEvent("Review", mon, model.Clock(9, 0))
	assert.False(t, ok)
	got, ok := cal.GetEvent("Retro", wed, model.Clock(9, 0))
	require.True(t, ok)
	assert.Same(t, ev, got)
	assert.NotContains(t, cal.daily, mon)
	assert.Len(t, cal.daily[wed], 1)
	assert.Same(t, ev, cal.EventsByID()[ev.ID()])
}

func TestUpdateEvent_SingleWithOtherEffectiveDate(t *testing.T) {
	cal := New("Work")
	ev := newSingle(t, "Review", mon, model.Clock(9, 0), model.Clock(10, 0), nil)
	require.NoError(t, cal.CreateEvent(ev))
	before := snap(cal)

	err := cal.UpdateEvent(ev, model.Patch{Location: model.Ptr("Room 4")}, &wed)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, before, snap(cal))
	assert.Equal(t, "", ev.Location())

	require.NoError(t, cal.UpdateEvent(ev, model.Patch{Location: model.Ptr("Room 4")}, &mon))
	assert.Equal(t, "Room 4", ev.Location())
}

func TestUpdateEvent_NotIndexed(t *testing.T) {
	cal := New("Work")
	ev := newSingle(t, "Review", mon, model.Clock(9, 0), model.Clock(10, 0), nil)

	err := cal.UpdateEvent(ev, model.Patch{Location: model.Ptr("Room 4")}, nil)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, cal.Len())
}

func TestUpdateEvent_SplitsSeries(t *testing.T) {
	cal := New("Work")
	series := newSeries(t, 4, time.Monday, time.Wednesday)
	require.NoError(t, cal.CreateEvent(series))
	past := series.Occurrences()[:2]
	split := model.NewDate(2025, time.November, 10)

	listener := new(mockListener)
	listener.On("OnEventModified", series).Return().Once()
	cal.AddListener(listener)

	require.NoError(t, cal.UpdateEvent(series, model.Patch{Location: model.Ptr("Online")}, &split))

	assert.Equal(t, mon, series.StartDate())
	assert.Equal(t, "Online", series.Location())
	assert.Same(t, series, cal.RecurringEvents()[series.ID()])

	leaves := series.Leaves()
	require.Len(t, leaves, 6)
	assert.Same(t, past[0], leaves[0])
	assert.Same(t, past[1], leaves[1])
	assert.Equal(t, 6, cal.Len())

	wantDates := []model.Date{
		mon,
		wed,
		split,
		model.NewDate(2025, time.November, 12),
		model.NewDate(2025, time.November, 17),
		model.NewDate(2025, time.November, 19),
	}
	for i, d := range wantDates {
		got, ok := cal.GetEvent("Weekly Sync", d, model.Clock(10, 0))
		require.True(t, ok, d.String())
		assert.Same(t, leaves[i], got)
		if d.Before(split) {
			assert.Equal(t, "", got.Location())
		} else {
			assert.Equal(t, "Online", got.Location())
		}
	}
	listener.AssertExpectations(t)
}

func TestUpdateEvent_OccurrenceTargetsSeries(t *testing.T) {
	cal := New("Work")
	series := newSeries(t, 3, time.Monday, time.Wednesday)
	require.NoError(t, cal.CreateEvent(series))
	first := series.Occurrences()[0]

	require.NoError(t, cal.UpdateEvent(series.Occurrences()[1], model.Patch{Location: model.Ptr("Online")}, nil))

	assert.Equal(t, "Online", series.Location())
	leaves := series.Leaves()
	require.Len(t, leaves, 4)
	assert.Same(t, first, leaves[0])
	assert.Equal(t, "", leaves[0].Location())
	for _, leaf := range leaves[1:] {
		assert.Equal(t, "Online", leaf.Location())
		assert.False(t, leaf.StartDate().Before(wed))
	}
	assert.Equal(t, 4, cal.Len())
	assertIndexed(t, cal)

	require.NoError(t, cal.DeleteEvent(series))
	assert.Zero(t, cal.Len())
	assert.Empty(t, cal.daily)
	assert.False(t, cal.IsBusy(wed, model.Clock(10, 30)))
	assertIndexed(t, cal)
}

func TestUpdateEvent_OccurrenceOfUnknownSeries(t *testing.T) {
	cal := New("Work")
	orphan, err := model.NewSingleEvent(model.SingleParams{
		Params: model.Params{
			Subject:   "Weekly Sync",
			StartDate: mon,
			StartTime: model.Ptr(model.Clock(10, 0)),
			EndDate:   mon,
			EndTime:   model.Ptr(model.Clock(11, 0)),
		},
		PartOfSeries: true,
		ParentID:     "gone",
	})
	require.NoError(t, err)

	err = cal.UpdateEvent(orphan, model.Patch{Location: model.Ptr("Online")}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, cal.Len())
}

func TestUpdateEvent_SeriesWithoutEffectiveDateReplacesAll(t *testing.T) {
	cal := New("Work")
	series := newSeries(t, 2, time.Monday)
	require.NoError(t, cal.CreateEvent(series))
	oldIDs := []string{series.Occurrences()[0].ID(), series.Occurrences()[1].ID()}

	require.NoError(t, cal.UpdateEvent(series, model.Patch{
		StartTime:      model.Ptr(model.Clock(14, 0)),
		EndTime:        model.Ptr(model.Clock(15, 0)),
		RecurrenceDays: []time.Weekday{time.Tuesday},
	}, nil))

	assert.Equal(t, 2, cal.Len())
	for _, id := range oldIDs {
		assert.NotContains(t, cal.EventsByID(), id)
	}
	for _, leaf := range series.Leaves() {
		assert.Equal(t, time.Tuesday, leaf.StartDate().Weekday())
		assert.Equal(t, model.Clock(14, 0), leaf.StartTime())
		assert.Equal(t, series.ID(), leaf.ParentID())
	}
	_, ok := cal.GetEvent("Weekly Sync", mon, model.Clock(10, 0))
	assert.False(t, ok)
}

func TestUpdateEvent_SeriesConflictRollsBack(t *testing.T) {
	cal := New("Work")
	series := newSeries(t, 2, time.Monday)
	dentist := newSingle(t, "Dentist", wed, model.Clock(10, 30), model.Clock(11, 30), nil)
	require.NoError(t, cal.CreateEvent(series))
	require.NoError(t, cal.CreateEvent(dentist))
	before := snap(cal)
	leaves := series.Leaves()

	err := cal.UpdateEvent(series, model.Patch{
		RecurrenceDays: []time.Weekday{time.Monday, time.Wednesday},
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrInvalidUpdate)
	assert.Equal(t, before, snap(cal))
	assert.Equal(t, leaves, series.Leaves())
	assert.Equal(t, []time.Weekday{time.Monday}, series.RecurrenceDays())
}

func TestUpdate_States(t *testing.T) {
	cal := New("Work")
	ev := newSingle(t, "Review", mon, model.Clock(9, 0), model.Clock(10, 0), nil)
	blocker := newSingle(t, "Standup", mon, model.Clock(11, 0), model.Clock(12, 0), nil)
	require.NoError(t, cal.CreateEvent(ev))
	require.NoError(t, cal.CreateEvent(blocker))

	tests := []struct {
		name  string
		patch model.Patch
		want  UpdateState
	}{
		{"committed", model.Patch{Description: model.Ptr("notes")}, StateCommitted},
		{"rolled back", model.Patch{EndTime: model.Ptr(model.Clock(11, 30))}, StateRolledBack},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &update{cal: cal, original: ev, patch: tt.patch, state: StateStart}
			_ = u.run()
			assert.Equal(t, tt.want, u.state)
		})
	}

	u := &update{cal: cal, original: ev, patch: model.Patch{}, effective: &wed, state: StateStart}
	require.Error(t, u.run())
	assert.Equal(t, StateStart, u.state)
}
