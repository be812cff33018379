package scheduling

import (
	"context"
	"fmt"
)

// SeriesStore is the persistence side of one expansion. Implementations bind
// the identity of the anchor (provider, patient, title, ... ) and combine it
// with each candidate's window.
type SeriesStore interface {
	// Exists reports whether a record of the same kind with the same identity
	// and exactly the candidate's start and end is already stored.
	Exists(ctx context.Context, c Candidate) (bool, error)
	// Create stores the candidate as an independent, non-recurring record.
	// It returns false when storage rejected the row as a duplicate.
	Create(ctx context.Context, c Candidate) (bool, error)
}

// SeriesStoreFuncs adapts two functions to SeriesStore.
type SeriesStoreFuncs struct {
	ExistsFunc func(ctx context.Context, c Candidate) (bool, error)
	CreateFunc func(ctx context.Context, c Candidate) (bool, error)
}

func (f SeriesStoreFuncs) Exists(ctx context.Context, c Candidate) (bool, error) {
	return f.ExistsFunc(ctx, c)
}

func (f SeriesStoreFuncs) Create(ctx context.Context, c Candidate) (bool, error) {
	return f.CreateFunc(ctx, c)
}

// ShouldCreate is the duplicate gate: false, with no error, when the
// candidate is already stored.
func ShouldCreate(ctx context.Context, c Candidate, store SeriesStore) (bool, error) {
	exists, err := store.Exists(ctx, c)
	if err != nil {
		return false, fmt.Errorf("duplicate lookup for %s: %w", c.Interval, err)
	}
	return !exists, nil
}

// ExpansionResult reports what one expansion did. Callers may ignore it:
// excluded and duplicate candidates are not errors.
type ExpansionResult struct {
	Created []Candidate             `json:"created"`
	Skipped map[ExclusionReason]int `json:"skipped,omitempty"`
}

// CreatedCount returns len(Created).
func (r ExpansionResult) CreatedCount() int { return len(r.Created) }

// Materialize expands anchor under rule, filters the candidates against cal,
// drops the ones already stored and creates the rest in chronological order.
// Running it again over the same anchor creates nothing new.
func Materialize(ctx context.Context, anchor Interval, rule Rule, kind SubjectKind, cal ExclusionCalendar, store SeriesStore) (ExpansionResult, error) {
	res := ExpansionResult{Skipped: make(map[ExclusionReason]int)}

	cands, err := Expand(anchor, rule, kind)
	if err != nil {
		return res, err
	}
	filtered := cal.Filter(cands, rule)
	for reason, n := range filtered.Skipped {
		res.Skipped[reason] += n
	}

	for _, c := range filtered.Kept {
		ok, err := ShouldCreate(ctx, c, store)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Skipped[ReasonDuplicate]++
			continue
		}
		created, err := store.Create(ctx, c)
		if err != nil {
			return res, fmt.Errorf("create occurrence %d (%s): %w", c.Index, c.Interval, err)
		}
		if !created {
			res.Skipped[ReasonDuplicate]++
			continue
		}
		res.Created = append(res.Created, c)
	}
	return res, nil
}
