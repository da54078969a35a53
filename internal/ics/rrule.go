package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"eventcal/internal/model"
)

var errUnsupportedRule = errors.New("unsupported recurrence rule")

// weeklyRule is the subset of RFC 5545 RRULE a RecurringEvent can hold:
// FREQ=WEEKLY, plain BYDAY, and either COUNT or UNTIL.
type weeklyRule struct {
	Days  []time.Weekday
	Count *int
	Until *model.Date
}

// parseWeeklyRule maps raw onto a weeklyRule. A rule without BYDAY repeats
// on the weekday of start. Anything outside the subset wraps
// errUnsupportedRule.
func parseWeeklyRule(raw string, start model.Date) (weeklyRule, error) {
	var out weeklyRule

	opt, err := rrule.StrToROption(raw)
	if err != nil {
		return out, fmt.Errorf("%w: %v", errUnsupportedRule, err)
	}
	switch {
	case opt.Freq != rrule.WEEKLY:
		return out, fmt.Errorf("%w: FREQ=%v", errUnsupportedRule, opt.Freq)
	case opt.Interval > 1:
		return out, fmt.Errorf("%w: INTERVAL=%d", errUnsupportedRule, opt.Interval)
	case opt.Count == 0 && opt.Until.IsZero():
		return out, fmt.Errorf("%w: unbounded", errUnsupportedRule)
	case opt.Count != 0 && !opt.Until.IsZero():
		return out, fmt.Errorf("%w: both COUNT and UNTIL", errUnsupportedRule)
	case len(opt.Bysetpos)+len(opt.Bymonth)+len(opt.Bymonthday)+len(opt.Byyearday)+
		len(opt.Byweekno)+len(opt.Byhour)+len(opt.Byminute)+len(opt.Bysecond)+len(opt.Byeaster) > 0:
		return out, fmt.Errorf("%w: BY* parts other than BYDAY", errUnsupportedRule)
	}

	for _, wd := range opt.Byweekday {
		if wd.N() != 0 {
			return out, fmt.Errorf("%w: positional BYDAY", errUnsupportedRule)
		}
		out.Days = append(out.Days, model.WeekdayOf(wd))
	}
	if len(out.Days) == 0 {
		out.Days = []time.Weekday{start.Weekday()}
	}

	if opt.Count != 0 {
		n := opt.Count
		out.Count = &n
	} else {
		until := model.DateOf(opt.Until)
		out.Until = &until
	}
	return out, nil
}

// ruleString renders the series as an RRULE value.
func ruleString(ev *model.RecurringEvent) string {
	opt := ev.RRuleOption()
	return opt.RRuleString()
}
