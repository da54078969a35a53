package calendar

import (
	"slices"

	"eventcal/internal/model"
)

// Listener is notified synchronously, in registration order, after a
// successful change. Implementations must be comparable (usually a
// pointer) so that registration can be deduplicated.
type Listener interface {
	// OnEventAdded is called once per indexed leaf of a created event.
	OnEventAdded(ev model.Event)
	// OnEventModified is called once with the updated event.
	OnEventModified(ev model.Event)
}

// ListenerFuncs adapts plain functions to Listener. Register a pointer.
type ListenerFuncs struct {
	Added    func(ev model.Event)
	Modified func(ev model.Event)
}

func (f *ListenerFuncs) OnEventAdded(ev model.Event) {
	if f.Added != nil {
		f.Added(ev)
	}
}

func (f *ListenerFuncs) OnEventModified(ev model.Event) {
	if f.Modified != nil {
		f.Modified(ev)
	}
}

// AddListener registers l. Adding the same listener twice is a no-op.
func (c *Calendar) AddListener(l Listener) {
	if l == nil || slices.Contains(c.listeners, l) {
		return
	}
	c.listeners = append(c.listeners, l)
}

// RemoveListener unregisters l. Removing an unknown listener is a no-op.
func (c *Calendar) RemoveListener(l Listener) {
	c.listeners = slices.DeleteFunc(c.listeners, func(x Listener) bool { return x == l })
}

func (c *Calendar) notifyAdded(ev model.Event) {
	for _, l := range slices.Clone(c.listeners) {
		l.OnEventAdded(ev)
	}
}

func (c *Calendar) notifyModified(ev model.Event) {
	for _, l := range slices.Clone(c.listeners) {
		l.OnEventModified(ev)
	}
}
