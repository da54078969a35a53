package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monday = NewDate(2025, time.November, 3)

func singleParams(subject string, date Date, start, end TimeOfDay) SingleParams {
	return SingleParams{Params: Params{
		Subject:   subject,
		StartDate: date,
		StartTime: &start,
		EndDate:   date,
		EndTime:   &end,
	}}
}

func weekly(t *testing.T, count int, days ...time.Weekday) *RecurringEvent {
	t.Helper()
	ev, err := NewRecurringEvent(RecurringParams{
		Params: Params{
			Subject:   "Weekly Sync",
			StartDate: monday,
			StartTime: Ptr(Clock(10, 0)),
			EndDate:   monday,
			EndTime:   Ptr(Clock(11, 0)),
		},
		RecurrenceDays: days,
		RepeatCount:    &count,
	})
	require.NoError(t, err)
	return ev
}

func dates(events []*SingleEvent) []Date {
	out := make([]Date, 0, len(events))
	for _, e := range events {
		out = append(out, e.StartDate())
	}
	return out
}

func TestNewSingleEvent_Validation(t *testing.T) {
	ten := Clock(10, 0)
	nine := Clock(9, 0)

	tests := []struct {
		name    string
		params  Params
		wantMsg string
	}{
		{
			name:    "end time without start time",
			params:  Params{Subject: "A", StartDate: monday, EndDate: monday, EndTime: &ten},
			wantMsg: "Cannot set endTime if startTime is null",
		},
		{
			name:    "missing subject",
			params:  Params{StartDate: monday, EndDate: monday},
			wantMsg: "Missing required parameters.",
		},
		{
			name:    "missing end date",
			params:  Params{Subject: "A", StartDate: monday},
			wantMsg: "Missing required parameters.",
		},
		{
			name:    "end before start",
			params:  Params{Subject: "A", StartDate: monday, StartTime: &ten, EndDate: monday, EndTime: &nine},
			wantMsg: "End time cannot be before start time",
		},
		{
			name:    "end date before start date",
			params:  Params{Subject: "A", StartDate: monday, StartTime: &ten, EndDate: monday.AddDays(-1), EndTime: &ten},
			wantMsg: "End time cannot be before start time",
		},
		{
			name:   "all day",
			params: Params{Subject: "A", StartDate: monday, EndDate: monday},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := NewSingleEvent(SingleParams{Params: tt.params})
			if tt.wantMsg != "" {
				require.Error(t, err)
				assert.Nil(t, ev)
				assert.ErrorIs(t, err, ErrInvalidEvent)
				assert.Equal(t, tt.wantMsg, err.Error())
				return
			}
			require.NoError(t, err)
			assert.True(t, ev.Validate().Valid)
		})
	}
}

func TestNewSingleEvent_Defaults(t *testing.T) {
	ev, err := NewSingleEvent(SingleParams{Params: Params{Subject: "Holiday", StartDate: monday, EndDate: monday}})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID())
	assert.Equal(t, StartOfDay, ev.StartTime())
	assert.Equal(t, EndOfDay, ev.EndTime())
	assert.True(t, ev.AllDay())
	assert.Equal(t, Public, ev.Visibility())
	assert.False(t, ev.AllowConflictSet())
	assert.False(t, ev.AllowConflict())
	assert.False(t, ev.PartOfSeries())

	other, err := NewSingleEvent(SingleParams{Params: Params{Subject: "Holiday", StartDate: monday, EndDate: monday}})
	require.NoError(t, err)
	assert.NotEqual(t, ev.ID(), other.ID())
}

func TestSingleEvent_IntervalsSpanDays(t *testing.T) {
	ev, err := NewSingleEvent(SingleParams{Params: Params{
		Subject:   "Conference",
		StartDate: monday,
		StartTime: Ptr(Clock(14, 0)),
		EndDate:   monday.AddDays(2),
		EndTime:   Ptr(Clock(12, 0)),
	}})
	require.NoError(t, err)

	ivs := ev.Intervals()
	require.Len(t, ivs, 3)
	assert.Equal(t, monday, ivs[0].Date())
	assert.Equal(t, Clock(14, 0), ivs[0].Start())
	assert.Equal(t, EndOfDay, ivs[0].End())
	assert.Equal(t, StartOfDay, ivs[1].Start())
	assert.Equal(t, EndOfDay, ivs[1].End())
	assert.Equal(t, monday.AddDays(2), ivs[2].Date())
	assert.Equal(t, StartOfDay, ivs[2].Start())
	assert.Equal(t, Clock(12, 0), ivs[2].End())
	for _, iv := range ivs {
		assert.Equal(t, ev.ID(), iv.EventID())
	}
	assert.Equal(t, []*SingleEvent{ev}, ev.Leaves())
}

func TestSingleEvent_DeepCopyKeepsIdentity(t *testing.T) {
	ev, err := NewSingleEvent(singleParams("Review", monday, Clock(9, 0), Clock(10, 0)))
	require.NoError(t, err)
	ev.SetAllowConflict(true)

	cp := ev.DeepCopy()
	assert.Equal(t, ev.ID(), cp.ID())
	assert.NotSame(t, ev, cp)

	cp.Apply(Patch{Location: Ptr("Room B"), AllowConflict: Ptr(false)})
	cp.PrepareForUpdate()
	assert.Equal(t, "", ev.Location())
	assert.True(t, ev.AllowConflict())
	assert.Equal(t, "Room B", cp.Location())

	ev.CopyFrom(cp, nil)
	assert.Equal(t, "Room B", ev.Location())
	assert.False(t, ev.AllowConflict())
}

func TestNewRecurringEvent_ExpandsByCount(t *testing.T) {
	ev := weekly(t, 3, time.Monday, time.Wednesday)

	assert.Equal(t, []Date{
		NewDate(2025, time.November, 3),
		NewDate(2025, time.November, 5),
		NewDate(2025, time.November, 10),
	}, dates(ev.Occurrences()))

	for _, c := range ev.Occurrences() {
		assert.True(t, c.PartOfSeries())
		assert.Equal(t, ev.ID(), c.ParentID())
		assert.Equal(t, "Weekly Sync", c.Subject())
		assert.Equal(t, Clock(10, 0), c.StartTime())
		assert.Equal(t, c.StartDate(), c.EndDate())
	}
	assert.Len(t, ev.Intervals(), 3)
}

func TestNewRecurringEvent_ExpandsByEndDate(t *testing.T) {
	until := NewDate(2025, time.November, 12)
	ev, err := NewRecurringEvent(RecurringParams{
		Params:            Params{Subject: "Gym", StartDate: monday, EndDate: monday},
		RecurrenceDays:    []time.Weekday{time.Wednesday, time.Monday, time.Monday},
		RecurrenceEndDate: &until,
	})
	require.NoError(t, err)

	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, ev.RecurrenceDays())
	assert.Equal(t, []Date{
		NewDate(2025, time.November, 3),
		NewDate(2025, time.November, 5),
		NewDate(2025, time.November, 10),
		NewDate(2025, time.November, 12),
	}, dates(ev.Occurrences()))

	_, ok := ev.RepeatCount()
	assert.False(t, ok)
	got, ok := ev.RecurrenceEndDate()
	assert.True(t, ok)
	assert.Equal(t, until, got)
}

func TestNewRecurringEvent_StartDayNotInSet(t *testing.T) {
	// Template on Monday, repeating on Fridays only, twice.
	ev := weekly(t, 2, time.Friday)
	assert.Equal(t, []Date{
		NewDate(2025, time.November, 7),
		NewDate(2025, time.November, 14),
	}, dates(ev.Occurrences()))
}

func TestNewRecurringEvent_ZeroCount(t *testing.T) {
	ev := weekly(t, 0, time.Monday)
	assert.Empty(t, ev.Occurrences())
	assert.Empty(t, ev.Intervals())
}

func TestNewRecurringEvent_OccurrenceCap(t *testing.T) {
	allDays := []time.Weekday{
		time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday,
	}
	base := Params{Subject: "Standup", StartDate: monday, EndDate: monday}

	_, err := NewRecurringEvent(RecurringParams{
		Params:         base,
		RecurrenceDays: allDays,
		RepeatCount:    Ptr(MaxOccurrences + 1),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.Contains(t, err.Error(), "Too many occurrences")

	ev, err := NewRecurringEvent(RecurringParams{
		Params:         base,
		RecurrenceDays: allDays,
		RepeatCount:    Ptr(MaxOccurrences),
	})
	require.NoError(t, err)
	assert.Len(t, ev.Occurrences(), MaxOccurrences)

	until := monday.AddDays(2 * MaxOccurrences)
	ev, err = NewRecurringEvent(RecurringParams{
		Params:            base,
		RecurrenceDays:    allDays,
		RecurrenceEndDate: &until,
	})
	require.NoError(t, err)
	occ := ev.Occurrences()
	require.Len(t, occ, MaxOccurrences)
	assert.Equal(t, monday, occ[0].StartDate())
	assert.Equal(t, monday.AddDays(MaxOccurrences-1), occ[MaxOccurrences-1].StartDate())
}

func TestNewRecurringEvent_Validation(t *testing.T) {
	count := 2
	until := NewDate(2025, time.December, 1)
	base := Params{Subject: "Standup", StartDate: monday, EndDate: monday}

	tests := []struct {
		name    string
		params  RecurringParams
		wantMsg string
	}{
		{
			name:    "no days",
			params:  RecurringParams{Params: base, RepeatCount: &count},
			wantMsg: "Missing required parameters.",
		},
		{
			name:    "no bound",
			params:  RecurringParams{Params: base, RecurrenceDays: []time.Weekday{time.Monday}},
			wantMsg: "Missing required parameters.",
		},
		{
			name:    "both bounds",
			params:  RecurringParams{Params: base, RecurrenceDays: []time.Weekday{time.Monday}, RepeatCount: &count, RecurrenceEndDate: &until},
			wantMsg: "Cannot set both repeatCount and recurrenceEndDate",
		},
		{
			name: "crosses day",
			params: RecurringParams{
				Params:         Params{Subject: "Standup", StartDate: monday, EndDate: monday.AddDays(1)},
				RecurrenceDays: []time.Weekday{time.Monday},
				RepeatCount:    &count,
			},
			wantMsg: "Recurring event cannot cross day",
		},
		{
			name: "base rules first",
			params: RecurringParams{
				Params:         Params{StartDate: monday, EndDate: monday},
				RecurrenceDays: []time.Weekday{time.Monday},
			},
			wantMsg: "Missing required parameters.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := NewRecurringEvent(tt.params)
			require.Error(t, err)
			assert.Nil(t, ev)
			assert.ErrorIs(t, err, ErrInvalidEvent)
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestRecurringEvent_SetAllowConflictPropagates(t *testing.T) {
	ev := weekly(t, 2, time.Monday)
	ev.SetAllowConflict(true)
	assert.True(t, ev.AllowConflictSet())
	for _, c := range ev.Occurrences() {
		assert.True(t, c.AllowConflict())
	}
}

func TestRecurringEvent_DeepCopyIsIndependent(t *testing.T) {
	ev := weekly(t, 3, time.Monday, time.Wednesday)
	cp := ev.DeepCopy().(*RecurringEvent)

	assert.Equal(t, ev.ID(), cp.ID())
	require.Len(t, cp.Occurrences(), 3)
	for i, c := range cp.Occurrences() {
		assert.Equal(t, ev.Occurrences()[i].ID(), c.ID())
		assert.NotSame(t, ev.Occurrences()[i], c)
	}

	cp.Apply(Patch{Location: Ptr("Online")})
	assert.Equal(t, "", ev.Occurrences()[0].Location())
	assert.Equal(t, "Online", cp.Occurrences()[0].Location())
	assert.NotEqual(t, ev.Occurrences()[0].ID(), cp.Occurrences()[0].ID(), "apply regenerates occurrences")
}

func TestRecurringEvent_ApplySwitchesBound(t *testing.T) {
	ev := weekly(t, 2, time.Monday)
	until := NewDate(2025, time.November, 24)

	ev.Apply(Patch{RecurrenceEndDate: &until})
	require.True(t, ev.Validate().Valid)
	_, hasCount := ev.RepeatCount()
	assert.False(t, hasCount)
	assert.Len(t, ev.Occurrences(), 4)

	ev.Apply(Patch{RepeatCount: Ptr(1), RecurrenceEndDate: &until})
	assert.False(t, ev.Validate().Valid)
	assert.Empty(t, ev.Occurrences())
}

func TestRecurringEvent_SplitAtDate(t *testing.T) {
	ev := weekly(t, 5, time.Monday, time.Wednesday)
	split := NewDate(2025, time.November, 5)

	oldView := ev.DeepCopy()
	oldView.PinStartDate(split)
	oldView.PrepareForUpdate()
	assert.Equal(t, split, oldView.StartDate())
	assert.Equal(t, split, oldView.EndDate())
	assert.Len(t, oldView.Leaves(), 4)

	newView := ev.DeepCopy()
	newView.Apply(Patch{StartDate: &split, EndDate: &split, Location: Ptr("Online")})
	newView.PrepareForUpdate()
	require.True(t, newView.Validate().Valid)

	first := ev.Occurrences()[0]
	ev.CopyFrom(newView, &split)

	assert.Equal(t, monday, ev.StartDate(), "series keeps its start")
	assert.Equal(t, "Online", ev.Location())
	leaves := ev.Leaves()
	require.Len(t, leaves, 6)
	assert.Same(t, first, leaves[0])
	assert.Equal(t, "", leaves[0].Location())
	for _, c := range leaves[1:] {
		assert.Equal(t, "Online", c.Location())
		assert.False(t, c.StartDate().Before(split))
	}
	assert.Len(t, ev.Intervals(), 6)
}

func TestRecurringEvent_IntervalsTrackOccurrences(t *testing.T) {
	ev := weekly(t, 2, time.Monday)
	first := ev.Occurrences()[0]

	first.Apply(Patch{StartTime: Ptr(Clock(8, 0))})
	first.PrepareForUpdate()

	ivs := ev.Intervals()
	require.Len(t, ivs, 2)
	assert.Equal(t, Clock(8, 0), ivs[0].Start())
	assert.Equal(t, first.ID(), ivs[0].EventID())
	assert.Equal(t, Clock(10, 0), ivs[1].Start())
}

func TestRecurringEvent_FollowsRule(t *testing.T) {
	ev := weekly(t, 3, time.Monday)
	assert.True(t, ev.FollowsRule())

	ev.SetAllowConflict(true)
	assert.True(t, ev.FollowsRule(), "flag change reaches every occurrence")

	split := NewDate(2025, time.November, 10)
	newView := ev.DeepCopy()
	newView.Apply(Patch{StartDate: &split, EndDate: &split, Location: Ptr("Online")})
	newView.PrepareForUpdate()
	ev.CopyFrom(newView, &split)
	assert.False(t, ev.FollowsRule())
}

func TestRRuleOption(t *testing.T) {
	ev := weekly(t, 3, time.Wednesday, time.Monday)
	opt := ev.RRuleOption()
	assert.Equal(t, 3, opt.Count)
	assert.True(t, opt.Until.IsZero())
	require.Len(t, opt.Byweekday, 2)
	assert.Equal(t, time.Monday, WeekdayOf(opt.Byweekday[0]))
	assert.Equal(t, time.Wednesday, WeekdayOf(opt.Byweekday[1]))
	assert.Contains(t, opt.RRuleString(), "FREQ=WEEKLY")
}

func TestIsNil(t *testing.T) {
	var single *SingleEvent
	var rec *RecurringEvent
	assert.True(t, IsNil(nil))
	assert.True(t, IsNil(single))
	assert.True(t, IsNil(rec))
	assert.False(t, IsNil(weekly(t, 1, time.Monday)))
}

func TestValidationResult(t *testing.T) {
	assert.NoError(t, Valid().Err())
	assert.Equal(t, "Valid", Valid().Message)

	r := Invalid(ErrInvalidEvent, "Missing required parameters.")
	err := r.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Missing required parameters.", ve.Message)
}
