package calendar

import (
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// UpdateState is a step of one UpdateEvent call.
type UpdateState string

const (
	StateStart      UpdateState = "start"
	StateOldRemoved UpdateState = "old_removed"
	StateValidated  UpdateState = "validated"
	StateInvalid    UpdateState = "invalid"
	StateCommitted  UpdateState = "committed"
	StateRolledBack UpdateState = "rolled_back"
)

// update carries one UpdateEvent call through its states.
type update struct {
	cal       *Calendar
	original  model.Event
	patch     model.Patch
	effective *model.Date

	oldView model.Event
	newView model.Event
	state   UpdateState
}

// UpdateEvent applies patch to original, which must be indexed in c.
//
// With an effective date the update targets a recurring series from that
// date on: occurrences before it are kept, the rest are regenerated from
// the patched template. For a single event the effective date must be its
// start date. An occurrence of a series stands for its series, effective
// from the occurrence's date unless effective is given.
//
// The update is all-or-nothing. If the patched event is invalid or does
// not fit the calendar, c is left exactly as before and the error matches
// ErrInvalidUpdate as well as the underlying kind. On success original is
// modified in place, keeping its id, and listeners get one modification
// notification.
func (c *Calendar) UpdateEvent(original model.Event, patch model.Patch, effective *model.Date) error {
	if model.IsNil(original) {
		return ErrNilEvent
	}
	if leaf, ok := original.(*model.SingleEvent); ok && leaf.PartOfSeries() {
		series, ok := c.recurring[leaf.ParentID()]
		if !ok {
			return model.Invalid(ErrNotFound, msgNotFound).Err()
		}
		if effective == nil {
			d := leaf.StartDate()
			effective = &d
		}
		original = series
	}
	u := &update{cal: c, original: original, patch: patch, effective: effective, state: StateStart}
	return u.run()
}

func (u *update) run() error {
	u.stage()

	if err := u.cal.DeleteEvent(u.oldView); err != nil {
		return err
	}
	u.state = StateOldRemoved

	if r := u.cal.validate(u.newView); !r.Valid {
		u.state = StateInvalid
		u.rollback()
		appLog.Info("calendar: update rolled back", "calendar", u.cal.title, "id", u.original.ID(), "reason", r.Message)
		return r.ErrAs(ErrInvalidUpdate)
	}
	u.state = StateValidated

	u.commit()
	appLog.Info("calendar: update committed", "calendar", u.cal.title, "id", u.original.ID(), "subject", u.original.Subject())
	return nil
}

// stage builds the view removed from the calendar and the patched view
// validated in its place.
func (u *update) stage() {
	_, recurring := u.original.(*model.RecurringEvent)

	u.oldView = u.original.DeepCopy()
	if u.effective != nil {
		d := *u.effective
		u.oldView.PinStartDate(d)
		u.patch.StartDate = &d
		if recurring && u.patch.EndDate == nil {
			u.patch.EndDate = &d
		}
	}
	u.oldView.PrepareForUpdate()

	u.newView = u.original.DeepCopy()
	u.newView.Apply(u.patch)
	u.newView.PrepareForUpdate()
}

// rollback re-indexes original as it was before the update. Nothing is
// re-validated, so the restore cannot be refused.
func (u *update) rollback() {
	u.cal.index(u.original)
	u.state = StateRolledBack
}

func (u *update) commit() {
	u.original.CopyFrom(u.newView, u.effective)
	u.cal.index(u.original)
	u.state = StateCommitted
	u.cal.notifyModified(u.original)
}
