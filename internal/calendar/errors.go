package calendar

import "errors"

// Failure kinds reported by Calendar. Match them with errors.Is; the error
// text is the human-readable reason.
var (
	ErrNilEvent      = errors.New("calendar: nil event")
	ErrDuplicate     = errors.New("calendar: duplicate event")
	ErrConflict      = errors.New("calendar: conflicting event")
	ErrNotFound      = errors.New("calendar: event not found")
	ErrInvalidUpdate = errors.New("calendar: invalid update")
)

const (
	msgDuplicate = "Event already exists"
	msgConflict  = "Conflicting with existing event"
	msgNotFound  = "Event does not exist"
)
