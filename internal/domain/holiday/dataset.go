package holiday

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	engine "github.com/clinicsched/scheduler/internal/platform/scheduling"
)

//go:embed holidays.yaml
var defaultDataset []byte

// Rule kinds understood by the generator.
const (
	RuleFixed         = "fixed"
	RuleNthWeekday    = "nth_weekday"
	RuleLastWeekday   = "last_weekday"
	RuleWeekdayBefore = "weekday_before"
	RuleEaster        = "easter"
)

// Observance shifts for holidays falling on a weekend.
const (
	ObservedNone    = ""
	ObservedNearest = "nearest"
	ObservedNext    = "next"
)

// Rule describes how one named holiday lands in a given year.
type Rule struct {
	Name       string `yaml:"name"`
	Rule       string `yaml:"rule"`
	Month      int    `yaml:"month"`
	Day        int    `yaml:"day"`
	Weekday    string `yaml:"weekday"`
	N          int    `yaml:"n"`
	Offset     int    `yaml:"offset"`
	Observed   string `yaml:"observed"`
	Since      int    `yaml:"since"`
	Recognized *bool  `yaml:"recognized"`
}

func (r Rule) recognized() bool { return r.Recognized == nil || *r.Recognized }

// Dataset holds holiday rules keyed by upper-case country code.
type Dataset struct {
	Countries map[string][]Rule `yaml:"countries"`
}

// DefaultDataset returns the embedded dataset.
func DefaultDataset() (*Dataset, error) {
	return LoadDataset(strings.NewReader(string(defaultDataset)))
}

// LoadDataset parses and checks a YAML dataset.
func LoadDataset(r io.Reader) (*Dataset, error) {
	var ds Dataset
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&ds); err != nil {
		return nil, fmt.Errorf("decode holiday dataset: %w", err)
	}
	normalized := make(map[string][]Rule, len(ds.Countries))
	for country, rules := range ds.Countries {
		code := strings.ToUpper(country)
		for i, rule := range rules {
			if err := rule.check(); err != nil {
				return nil, fmt.Errorf("%s rule %d (%s): %w", code, i, rule.Name, err)
			}
		}
		normalized[code] = rules
	}
	ds.Countries = normalized
	return &ds, nil
}

// Supports reports whether the dataset has rules for country.
func (ds *Dataset) Supports(country string) bool {
	_, ok := ds.Countries[strings.ToUpper(country)]
	return ok
}

// CountryCodes returns the supported countries in sorted order.
func (ds *Dataset) CountryCodes() []string {
	out := make([]string, 0, len(ds.Countries))
	for c := range ds.Countries {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

func (r Rule) check() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	needsMonth := r.Rule != RuleEaster
	if needsMonth && (r.Month < 1 || r.Month > 12) {
		return fmt.Errorf("month %d out of range", r.Month)
	}
	switch r.Rule {
	case RuleFixed, RuleWeekdayBefore:
		if r.Day < 1 || r.Day > 31 {
			return fmt.Errorf("day %d out of range", r.Day)
		}
	case RuleNthWeekday:
		if r.N < 1 || r.N > 5 {
			return fmt.Errorf("n %d out of range", r.N)
		}
	case RuleLastWeekday, RuleEaster:
	default:
		return fmt.Errorf("unknown rule %q", r.Rule)
	}
	switch r.Rule {
	case RuleNthWeekday, RuleLastWeekday, RuleWeekdayBefore:
		if _, ok := weekdays[strings.ToLower(r.Weekday)]; !ok {
			return fmt.Errorf("unknown weekday %q", r.Weekday)
		}
	}
	switch r.Observed {
	case ObservedNone, ObservedNearest, ObservedNext:
	default:
		return fmt.Errorf("unknown observance %q", r.Observed)
	}
	return nil
}

// Occurrence is a generated holiday for one year.
type Occurrence struct {
	Date       engine.Date
	Name       string
	Recognized bool
}

// Generate lists country's holidays for year in date order. Weekend dates
// are shifted per the rule's observance; a shifted day never lands on a date
// already taken by another holiday.
func (ds *Dataset) Generate(country string, year int) ([]Occurrence, error) {
	rules, ok := ds.Countries[strings.ToUpper(country)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCountry, country)
	}

	var out []Occurrence
	taken := make(map[engine.Date]bool)
	var shifted []Rule
	for _, r := range rules {
		if r.Since > 0 && year < r.Since {
			continue
		}
		d := r.dateIn(year)
		if r.Observed != ObservedNone && isWeekend(d) {
			shifted = append(shifted, r)
		}
		out = append(out, Occurrence{Date: engine.DateOf(d), Name: r.Name, Recognized: r.recognized()})
		taken[engine.DateOf(d)] = true
	}

	// Observed days go in after every actual date is known.
	for _, r := range shifted {
		d := r.observe(r.dateIn(year), taken)
		taken[engine.DateOf(d)] = true
		out = append(out, Occurrence{Date: engine.DateOf(d), Name: r.Name + " (observed)", Recognized: r.recognized()})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r Rule) dateIn(year int) time.Time {
	month := time.Month(r.Month)
	wd := weekdays[strings.ToLower(r.Weekday)]
	switch r.Rule {
	case RuleNthWeekday:
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		shift := (int(wd) - int(first.Weekday()) + 7) % 7
		return first.AddDate(0, 0, shift+7*(r.N-1))
	case RuleLastWeekday:
		last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
		back := (int(last.Weekday()) - int(wd) + 7) % 7
		return last.AddDate(0, 0, -back)
	case RuleWeekdayBefore:
		ref := time.Date(year, month, r.Day, 0, 0, 0, 0, time.UTC)
		back := (int(ref.Weekday()) - int(wd) + 7) % 7
		return ref.AddDate(0, 0, -back)
	case RuleEaster:
		return easterSunday(year).AddDate(0, 0, r.Offset)
	default:
		return time.Date(year, month, r.Day, 0, 0, 0, 0, time.UTC)
	}
}

func (r Rule) observe(d time.Time, taken map[engine.Date]bool) time.Time {
	if r.Observed == ObservedNearest {
		switch d.Weekday() {
		case time.Saturday:
			d = d.AddDate(0, 0, -1)
		case time.Sunday:
			d = d.AddDate(0, 0, 1)
		}
		if !taken[engine.DateOf(d)] {
			return d
		}
	}
	for isWeekend(d) || taken[engine.DateOf(d)] {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

// easterSunday computes Western Easter (anonymous Gregorian algorithm).
func easterSunday(year int) time.Time {
	a := year % 19
	b, c := year/100, year%100
	d, e := b/4, b%4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i, k := c/4, c%4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
