package scheduling

// Verdict is the outcome of running one candidate through the exclusion
// filter.
type Verdict int

const (
	// Keep passes the candidate on to the duplicate check.
	Keep Verdict = iota
	// Skip drops this candidate; later candidates are still considered.
	Skip
	// Stop drops this candidate and every candidate after it.
	Stop
)

// ExclusionReason names the rule that rejected a candidate.
type ExclusionReason string

const (
	ReasonNone           ExclusionReason = ""
	ReasonPastEndDate    ExclusionReason = "past_end_date"
	ReasonWeekend        ExclusionReason = "weekend"
	ReasonBlockedWeekday ExclusionReason = "blocked_weekday"
	ReasonHoliday        ExclusionReason = "holiday"
	ReasonDuplicate      ExclusionReason = "duplicate"
)

// Evaluate applies the exclusion rules to one candidate in order: end date
// (terminating), weekend, organization-blocked weekday, holiday. Weekday and
// date are read in the candidate start's own location.
func (c ExclusionCalendar) Evaluate(cand Candidate, rule Rule) (Verdict, ExclusionReason) {
	day := DateOf(cand.Start)
	if rule.EndDate != nil && day.After(*rule.EndDate) {
		return Stop, ReasonPastEndDate
	}
	wd := WeekdayOf(cand.Start)
	if wd.IsWeekend() {
		return Skip, ReasonWeekend
	}
	if c.IsBlockedWeekday(wd) {
		return Skip, ReasonBlockedWeekday
	}
	if c.IsHoliday(day) {
		return Skip, ReasonHoliday
	}
	return Keep, ReasonNone
}

// FilterResult is what survives the exclusion filter plus a tally of what
// did not.
type FilterResult struct {
	Kept    []Candidate
	Skipped map[ExclusionReason]int
}

// Filter runs candidates through Evaluate in order. Generation ends at the
// first candidate past the end date; that candidate and the ones after it are
// counted once under ReasonPastEndDate.
func (c ExclusionCalendar) Filter(cands []Candidate, rule Rule) FilterResult {
	res := FilterResult{Skipped: make(map[ExclusionReason]int)}
	for i, cand := range cands {
		verdict, reason := c.Evaluate(cand, rule)
		switch verdict {
		case Stop:
			res.Skipped[reason] += len(cands) - i
			return res
		case Skip:
			res.Skipped[reason]++
		default:
			res.Kept = append(res.Kept, cand)
		}
	}
	return res
}
