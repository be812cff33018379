package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Frequency is how often a recurring occurrence repeats.
type Frequency string

const (
	FrequencyNone    Frequency = "none"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ParseFrequency accepts the four frequency names case-insensitively. An
// empty string means FrequencyNone.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FrequencyNone, nil
	case FrequencyNone, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return f, nil
	}
	return "", &InvalidRecurrenceError{Field: "recurrence.frequency", Reason: fmt.Sprintf("unsupported frequency %q", s)}
}

// SubjectKind distinguishes the two kinds of records the engine materializes.
type SubjectKind string

const (
	KindAppointment  SubjectKind = "appointment"
	KindAvailability SubjectKind = "availability"
)

// MaxInstances is the hard cap on generated children for a frequency. It
// applies independently of any end date.
func MaxInstances(f Frequency, kind SubjectKind) int {
	switch f {
	case FrequencyDaily:
		return 179
	case FrequencyWeekly:
		if kind == KindAppointment {
			return 23
		}
		return 59
	case FrequencyMonthly:
		return 11
	}
	return 0
}

// Rule is the recurrence attached to an anchor occurrence.
type Rule struct {
	Frequency Frequency `json:"frequency"`
	EndDate   *Date     `json:"end_date,omitempty"`
}

// Recurs reports whether the rule expands at all.
func (r Rule) Recurs() bool {
	return r.Frequency != "" && r.Frequency != FrequencyNone
}

// Validate checks the rule against the anchor start. A recurring rule needs an
// end date that is not before the anchor's own date.
func (r Rule) Validate(anchorStart time.Time) error {
	if _, err := ParseFrequency(string(r.Frequency)); err != nil {
		return err
	}
	if !r.Recurs() {
		return nil
	}
	if r.EndDate == nil || r.EndDate.IsZero() {
		return &InvalidRecurrenceError{Field: "recurrence.end_date", Reason: "end date is required for recurring events"}
	}
	if r.EndDate.Before(DateOf(anchorStart)) {
		return &InvalidRecurrenceError{
			Field:  "recurrence.end_date",
			Reason: fmt.Sprintf("end date %s is before the first occurrence on %s", r.EndDate, DateOf(anchorStart)),
		}
	}
	return nil
}

// Horizon returns the inclusive date range an expansion of the rule can reach:
// from the anchor's date to the earlier of the end date and the last date the
// instance cap allows. Callers use it to bound exclusion lookups.
func (r Rule) Horizon(anchorStart time.Time, kind SubjectKind) (Date, Date) {
	from := DateOf(anchorStart)
	n := MaxInstances(r.Frequency, kind)
	if !r.Recurs() || n == 0 {
		return from, from
	}

	var to Date
	switch r.Frequency {
	case FrequencyDaily:
		to = from.AddDays(n)
	case FrequencyWeekly:
		to = from.AddDays(7 * n)
	default:
		to = DateOf(anchorStart.AddDate(0, n, 0))
	}
	if r.EndDate != nil && !r.EndDate.IsZero() && r.EndDate.Before(to) {
		to = *r.EndDate
	}
	return from, to
}

// Candidate is a computed future occurrence that has not yet been filtered or
// checked for duplicates. Index is its position i in the series (anchor = 0).
type Candidate struct {
	Index int `json:"index"`
	Interval
}

// Expand generates the candidates that follow anchor under rule, in strictly
// increasing order and at most MaxInstances(rule.Frequency, kind) of them.
// Each candidate keeps the anchor's duration. Monthly steps clamp the day of
// month, so Jan 31 is followed by the last day of February.
func Expand(anchor Interval, rule Rule, kind SubjectKind) ([]Candidate, error) {
	if !rule.Recurs() {
		return nil, nil
	}
	limit := MaxInstances(rule.Frequency, kind)
	if limit == 0 {
		return nil, nil
	}
	if err := anchor.Validate(); err != nil {
		return nil, err
	}

	opt := rrule.ROption{
		Dtstart: anchor.Start,
		// DTSTART is the first instance of an RRULE; ask for one extra.
		Count: limit + 1,
	}
	switch rule.Frequency {
	case FrequencyDaily:
		opt.Freq = rrule.DAILY
	case FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
	case FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
		day := anchor.Start.Day()
		if day > 28 {
			// Earliest of "the anchor's day" and "the last day": the anchor's
			// day when the month has it, the month's last day otherwise.
			opt.Bymonthday = []int{day, -1}
			opt.Bysetpos = []int{1}
		} else {
			opt.Bymonthday = []int{day}
		}
	default:
		return nil, fmt.Errorf("expand: unsupported frequency %q", rule.Frequency)
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("expand: build rrule: %w", err)
	}

	duration := anchor.Duration()
	first := anchor.Start.Truncate(time.Second)
	out := make([]Candidate, 0, limit)
	for _, start := range r.All() {
		if !start.After(first) {
			continue
		}
		out = append(out, Candidate{
			Index:    len(out) + 1,
			Interval: NewInterval(start, duration),
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
