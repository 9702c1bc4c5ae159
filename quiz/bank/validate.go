package bank

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// validate performs every structural check and joins all problems found.
func validate(questions []Question, categories []Category, lo, hi int) error {
	var errs []error

	if len(questions) == 0 {
		errs = append(errs, errors.New("no questions configured"))
	}
	for _, q := range questions {
		errs = append(errs, validateQuestion(q)...)
	}
	errs = append(errs, validateCategories(categories, lo, hi)...)

	return errors.Join(errs...)
}

func validateQuestion(q Question) []error {
	var errs []error
	if q.Prompt == "" {
		errs = append(errs, fmt.Errorf("question %d: empty prompt", q.Index))
	}
	if len(q.Options) < 2 {
		errs = append(errs, fmt.Errorf("question %d: need at least 2 options, got %d", q.Index, len(q.Options)))
	}
	seen := make(map[string]bool, len(q.Options))
	for j, o := range q.Options {
		if o.Label == "" {
			errs = append(errs, fmt.Errorf("question %d option %d: empty label", q.Index, j))
			continue
		}
		key := strings.ToUpper(o.Label)
		if seen[key] {
			errs = append(errs, fmt.Errorf("question %d: duplicate label %q", q.Index, o.Label))
		}
		seen[key] = true
	}
	return errs
}

// validateCategories requires a gap-free, non-overlapping table that covers
// every reachable total in [lo, hi].
func validateCategories(categories []Category, lo, hi int) []error {
	if len(categories) == 0 {
		return []error{errors.New("no result categories configured")}
	}

	var errs []error
	names := make(map[string]bool, len(categories))
	for i, c := range categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("category %d: empty name", i))
		} else if names[name] {
			errs = append(errs, fmt.Errorf("category %d: duplicate name %q", i, name))
		}
		names[name] = true
		if c.Min > c.Max {
			errs = append(errs, fmt.Errorf("category %q: min %d > max %d", c.Name, c.Min, c.Max))
		}
	}
	if len(errs) > 0 {
		return errs
	}

	sorted := append([]Category(nil), categories...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		switch {
		case cur.Min <= prev.Max:
			errs = append(errs, fmt.Errorf("categories %q and %q overlap at %d", prev.Name, cur.Name, cur.Min))
		case cur.Min > prev.Max+1:
			errs = append(errs, fmt.Errorf("gap between categories %q and %q: %d..%d uncovered", prev.Name, cur.Name, prev.Max+1, cur.Min-1))
		}
	}
	if first := sorted[0]; first.Min > lo {
		errs = append(errs, fmt.Errorf("totals %d..%d uncovered: lowest category %q starts at %d", lo, first.Min-1, first.Name, first.Min))
	}
	if last := sorted[len(sorted)-1]; last.Max < hi {
		errs = append(errs, fmt.Errorf("totals %d..%d uncovered: highest category %q ends at %d", last.Max+1, hi, last.Name, last.Max))
	}
	return errs
}
