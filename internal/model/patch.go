package model

import "time"

// Patch is a partial update. Nil fields leave the target untouched. The
// recurrence fields only apply to a RecurringEvent.
type Patch struct {
	Subject       *string
	StartDate     *Date
	StartTime     *TimeOfDay
	EndDate       *Date
	EndTime       *TimeOfDay
	Description   *string
	Location      *string
	AllowConflict *bool
	Visibility    *Visibility

	RecurrenceDays    []time.Weekday
	RepeatCount       *int
	RecurrenceEndDate *Date
}

// Ptr returns a pointer to v, for filling Params and Patch literals.
func Ptr[T any](v T) *T {
	return &v
}
