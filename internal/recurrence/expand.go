package recurrence

import (
	"log/slog"
	"time"
)

// maxOccurrences caps a single expansion so an unbounded rule over a long
// range cannot produce an unbounded slice.
const maxOccurrences = 5000

// Occurrence represents a single generated occurrence of a recurring event.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Expand generates the occurrences of a recurring event that overlap
// [rangeStart, rangeEnd). eventStart and eventEnd define the first
// occurrence; its duration is kept for every later one. Occurrences are
// computed in eventStart's location.
func Expand(p Pattern, eventStart, eventEnd time.Time, rangeStart, rangeEnd time.Time) []Occurrence {
	if !rangeStart.Before(rangeEnd) {
		return nil
	}

	r, err := p.rrule(eventStart)
	if err != nil {
		slog.Error("build recurrence rule", "rule", p.String(), "error", err)
		return nil
	}

	duration := eventEnd.Sub(eventStart)
	starts := r.Between(rangeStart.Add(-duration), rangeEnd, true)

	var results []Occurrence
	for _, occStart := range starts {
		occEnd := occStart.Add(duration)
		// Overlap: occStart < rangeEnd && occEnd > rangeStart. Zero-length
		// events count when they start at rangeStart.
		if !occStart.Before(rangeEnd) || (duration > 0 && !occEnd.After(rangeStart)) {
			continue
		}
		results = append(results, Occurrence{Start: occStart, End: occEnd})
		if len(results) == maxOccurrences {
			slog.Warn("recurrence expansion truncated", "rule", p.String(), "cap", maxOccurrences)
			break
		}
	}
	return results
}

// ExpandRule parses rule and expands it. Unparsable rules yield the single
// stored occurrence when it overlaps the range.
func ExpandRule(rule string, eventStart, eventEnd time.Time, rangeStart, rangeEnd time.Time) ([]Occurrence, error) {
	p, err := Parse(rule)
	if err != nil {
		if eventStart.Before(rangeEnd) && eventEnd.After(rangeStart) {
			return []Occurrence{{Start: eventStart, End: eventEnd}}, err
		}
		return nil, err
	}
	return Expand(p, eventStart, eventEnd, rangeStart, rangeEnd), nil
}
