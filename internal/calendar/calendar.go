// Package calendar implements the per-worker free-interval resolver (C2):
// weekly rules, minus recurring breaks, with dated exceptions applied in
// order, minus existing blocks, clipped to the query window. Grounded on
// the original source's booking/services/availability.py
// (working_intervals_for_worker / busy_intervals_for_worker).
package calendar

import (
	"sort"
	"time"

	"github.com/shearline/booking-core/internal/models"
	"github.com/shearline/booking-core/pkg/intervals"
)

// WorkerInput bundles everything the resolver needs for one worker on one
// date; callers build this once per (worker, date) from bulk-fetched rows
// so the repository facade can avoid N+1 queries (§9).
type WorkerInput struct {
	WorkerID     string
	Date         time.Time // midnight of D, in the shop's location
	Rules        []models.WeeklyScheduleRule
	Breaks       []models.RecurringBreak
	Exceptions   []models.CalendarException // for date D, in insertion order
	ExistingBusy []intervals.Interval        // blocks that count as busy (§4.2 step 4)
}

// FreeIntervals computes the disjoint, sorted list of free intervals for
// one worker on date D, clipped to [window.Start, window.End).
func FreeIntervals(in WorkerInput, window intervals.Interval, loc *time.Location) []intervals.Interval {
	dow := int(in.Date.Weekday())

	base := materializeRules(in.Rules, dow, in.Date, loc)
	if len(base) == 0 {
		return nil
	}

	breaks := materializeBreaks(in.Breaks, dow, in.Date, loc)
	base = intervals.Subtract(base, breaks)

	for _, exc := range in.Exceptions {
		switch exc.Type {
		case models.ExceptionTimeOff:
			if exc.StartTime == nil || exc.EndTime == nil {
				return nil
			}
			cut := exceptionInterval(exc, in.Date, loc)
			base = intervals.Subtract(base, []intervals.Interval{cut})
		case models.ExceptionExtraWorking:
			if exc.StartTime == nil || exc.EndTime == nil {
				continue
			}
			extra := exceptionInterval(exc, in.Date, loc)
			base = intervals.Merge(append(base, extra))
		}
	}

	base = intervals.Subtract(base, in.ExistingBusy)
	return intervals.Clip(base, window)
}

func materializeRules(rules []models.WeeklyScheduleRule, dow int, date time.Time, loc *time.Location) []intervals.Interval {
	var out []intervals.Interval
	for _, r := range rules {
		if !r.Active || r.DayOfWeek != dow {
			continue
		}
		start, err1 := combineHHMM(date, r.StartTime, loc)
		end, err2 := combineHHMM(date, r.EndTime, loc)
		if err1 != nil || err2 != nil || !start.Before(end) {
			continue
		}
		out = append(out, intervals.Interval{Start: start, End: end})
	}
	return intervals.Merge(out)
}

func materializeBreaks(breaks []models.RecurringBreak, dow int, date time.Time, loc *time.Location) []intervals.Interval {
	var out []intervals.Interval
	for _, b := range breaks {
		if b.DayOfWeek != dow {
			continue
		}
		start, err1 := combineHHMM(date, b.StartTime, loc)
		end, err2 := combineHHMM(date, b.EndTime, loc)
		if err1 != nil || err2 != nil || !start.Before(end) {
			continue
		}
		out = append(out, intervals.Interval{Start: start, End: end})
	}
	return out
}

func exceptionInterval(exc models.CalendarException, date time.Time, loc *time.Location) intervals.Interval {
	start, _ := combineHHMM(date, *exc.StartTime, loc)
	end, _ := combineHHMM(date, *exc.EndTime, loc)
	return intervals.Interval{Start: start, End: end}
}

// combineHHMM builds an aware datetime from a calendar date and an "HH:MM"
// time-of-day string.
func combineHHMM(date time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("15:04", hhmm, loc)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
}

// BusyFromBlocks converts a flat list of blocks into the ExistingBusy
// intervals for one worker. Callers are expected to have already filtered
// out blocks belonging to non-busy appointments (CANCELLED deletes its
// blocks outright; NO_SHOW blocks are filtered at the query layer, which
// keeps only RESERVED/ATTENDED, see repository.GetBlocksForWorkersInWindow)
// before reaching here.
func BusyFromBlocks(blocks []models.AppointmentBlock) []intervals.Interval {
	out := make([]intervals.Interval, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, intervals.Interval{Start: b.StartDatetime, End: b.EndDatetime})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
