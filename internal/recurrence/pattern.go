package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrUnsupported is returned for valid RRULEs that cadence does not model,
// such as HOURLY frequencies.
var ErrUnsupported = errors.New("unsupported recurrence")

type Freq int

const (
	Daily Freq = iota
	Weekly
	Monthly
	Yearly
)

var freqNames = map[Freq]string{
	Daily:   "DAILY",
	Weekly:  "WEEKLY",
	Monthly: "MONTHLY",
	Yearly:  "YEARLY",
}

var toRRuleFreq = map[Freq]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
	Yearly:  rrule.YEARLY,
}

var dayAbbrev = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

var toRRuleDay = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// Pattern describes how a calendar event repeats.
type Pattern struct {
	Freq       Freq
	Interval   int            // default 1; 2 = biweekly when Freq=Weekly
	ByDay      []time.Weekday // for WEEKLY: which days (empty = same weekday as start)
	ByMonthDay int            // for MONTHLY: day of month (0 = same as start)
	Count      int            // max occurrences (0 = unlimited)
	Until      *time.Time     // stop after this instant (nil = no limit)
}

// Parse parses an RRULE string like "FREQ=WEEKLY;BYDAY=MO,WE;INTERVAL=2".
// A leading "RRULE:" is accepted.
func Parse(rule string) (Pattern, error) {
	rule = strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:")
	if rule == "" {
		return Pattern{}, fmt.Errorf("empty rule")
	}

	// rrule-go reads INTERVAL=0 and COUNT=0 as "unset"; reject them here.
	for _, part := range strings.Split(rule, ";") {
		key, val, _ := strings.Cut(part, "=")
		if key == "INTERVAL" || key == "COUNT" {
			if n, err := strconv.Atoi(val); err != nil || n < 1 {
				return Pattern{}, fmt.Errorf("invalid %s: %q", strings.ToLower(key), val)
			}
		}
	}

	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return Pattern{}, fmt.Errorf("parse rule %q: %w", rule, err)
	}

	p := Pattern{Interval: 1, Count: opt.Count}
	switch opt.Freq {
	case rrule.DAILY:
		p.Freq = Daily
	case rrule.WEEKLY:
		p.Freq = Weekly
	case rrule.MONTHLY:
		p.Freq = Monthly
	case rrule.YEARLY:
		p.Freq = Yearly
	default:
		return Pattern{}, fmt.Errorf("%w: frequency %v", ErrUnsupported, opt.Freq)
	}

	if opt.Interval > 0 {
		p.Interval = opt.Interval
	}

	for i := range opt.Byweekday {
		if opt.Byweekday[i].N() != 0 {
			return Pattern{}, fmt.Errorf("%w: positional BYDAY", ErrUnsupported)
		}
		// rrule-go numbers weekdays from Monday = 0
		p.ByDay = append(p.ByDay, time.Weekday((opt.Byweekday[i].Day()+1)%7))
	}

	switch len(opt.Bymonthday) {
	case 0:
	case 1:
		if opt.Bymonthday[0] < 1 {
			return Pattern{}, fmt.Errorf("%w: BYMONTHDAY %d", ErrUnsupported, opt.Bymonthday[0])
		}
		p.ByMonthDay = opt.Bymonthday[0]
	default:
		return Pattern{}, fmt.Errorf("%w: multiple BYMONTHDAY values", ErrUnsupported)
	}

	if !opt.Until.IsZero() {
		until := opt.Until
		p.Until = &until
	}

	return p, nil
}

// String serializes the pattern back to an RRULE string.
func (p Pattern) String() string {
	var parts []string
	parts = append(parts, "FREQ="+freqNames[p.Freq])

	if p.Interval > 1 {
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", p.Interval))
	}

	if len(p.ByDay) > 0 {
		var days []string
		for _, d := range p.ByDay {
			days = append(days, dayAbbrev[d])
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}

	if p.ByMonthDay > 0 {
		parts = append(parts, fmt.Sprintf("BYMONTHDAY=%d", p.ByMonthDay))
	}

	if p.Count > 0 {
		parts = append(parts, fmt.Sprintf("COUNT=%d", p.Count))
	}

	if p.Until != nil {
		parts = append(parts, "UNTIL="+p.Until.UTC().Format("20060102T150405Z"))
	}

	return strings.Join(parts, ";")
}

// Describe returns a human-readable description of the pattern.
func (p Pattern) Describe() string {
	var desc string
	switch p.Freq {
	case Daily:
		desc = "Repeats daily"
		if p.Interval > 1 {
			desc = fmt.Sprintf("Repeats every %d days", p.Interval)
		}
	case Weekly:
		desc = "Repeats weekly"
		if p.Interval > 1 {
			desc = fmt.Sprintf("Repeats every %d weeks", p.Interval)
		}
		if len(p.ByDay) > 0 {
			var names []string
			for _, d := range p.ByDay {
				names = append(names, d.String()[:3])
			}
			desc += " on " + strings.Join(names, ", ")
		}
	case Monthly:
		desc = "Repeats monthly"
		if p.Interval > 1 {
			desc = fmt.Sprintf("Repeats every %d months", p.Interval)
		}
		if p.ByMonthDay > 0 {
			desc += fmt.Sprintf(" on day %d", p.ByMonthDay)
		}
	case Yearly:
		desc = "Repeats yearly"
		if p.Interval > 1 {
			desc = fmt.Sprintf("Repeats every %d years", p.Interval)
		}
	}

	switch {
	case p.Count == 1:
		desc += ", once"
	case p.Count > 1:
		desc += fmt.Sprintf(", %d times", p.Count)
	case p.Until != nil:
		desc += ", until " + p.Until.Format("Jan 2, 2006")
	}
	return desc
}

func (p Pattern) rrule(dtstart time.Time) (*rrule.RRule, error) {
	opt := rrule.ROption{
		Freq:     toRRuleFreq[p.Freq],
		Dtstart:  dtstart,
		Interval: p.Interval,
		Count:    p.Count,
	}
	for _, d := range p.ByDay {
		opt.Byweekday = append(opt.Byweekday, toRRuleDay[d])
	}
	if p.ByMonthDay > 0 {
		opt.Bymonthday = []int{p.ByMonthDay}
	}
	if p.Until != nil {
		opt.Until = *p.Until
	}
	return rrule.NewRRule(opt)
}
