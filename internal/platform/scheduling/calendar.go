package scheduling

import (
	"fmt"
	"sort"
	"time"
)

// Weekday numbers days Monday=0 through Sunday=6. It is the only weekday
// numbering used inside the engine; organization settings stored as
// Sunday=0..Saturday=6 are converted with WeekdayFromSundayIndex.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func (w Weekday) String() string {
	if w < Monday || w > Sunday {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayNames[w]
}

// IsWeekend reports Saturday or Sunday.
func (w Weekday) IsWeekend() bool { return w == Saturday || w == Sunday }

// SundayIndex converts back to the Sunday=0..Saturday=6 numbering.
func (w Weekday) SundayIndex() int { return (int(w) + 1) % 7 }

// WeekdayOf returns the weekday of t in t's own location.
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

// WeekdayFromSundayIndex converts an organization blocked-day value
// (Sunday=0..Saturday=6) to a Weekday.
func WeekdayFromSundayIndex(d int) (Weekday, error) {
	if d < 0 || d > 6 {
		return 0, fmt.Errorf("blocked day %d out of range 0-6", d)
	}
	return Weekday((d + 6) % 7), nil
}

// Date is a civil calendar date without time or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.In(time.UTC).AddDate(0, 0, n))
}

func (d Date) IsZero() bool { return d == Date{} }

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(int(d.Month) - int(o.Month))
	default:
		return sign(d.Day - o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// ExclusionCalendar is the read-only set of days on which recurrence never
// materializes an occurrence. Weekends are always excluded and are not part
// of the calendar data.
type ExclusionCalendar struct {
	blockedWeekdays map[Weekday]bool
	holidays        map[Date]bool
}

// NewExclusionCalendar builds a calendar from canonical weekdays and dates.
func NewExclusionCalendar(blocked []Weekday, holidays []Date) ExclusionCalendar {
	c := ExclusionCalendar{
		blockedWeekdays: make(map[Weekday]bool, len(blocked)),
		holidays:        make(map[Date]bool, len(holidays)),
	}
	for _, w := range blocked {
		c.blockedWeekdays[w] = true
	}
	for _, d := range holidays {
		c.holidays[d] = true
	}
	return c
}

// IsBlockedWeekday reports whether w is an organization-blocked weekday.
func (c ExclusionCalendar) IsBlockedWeekday(w Weekday) bool { return c.blockedWeekdays[w] }

// IsHoliday reports whether d is a recognized, non-suppressed holiday.
func (c ExclusionCalendar) IsHoliday(d Date) bool { return c.holidays[d] }

// BlockedWeekdays returns the blocked weekdays in ascending order.
func (c ExclusionCalendar) BlockedWeekdays() []Weekday {
	out := make([]Weekday, 0, len(c.blockedWeekdays))
	for w := range c.blockedWeekdays {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
