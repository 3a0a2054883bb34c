// Package history merges new price records into an ordered, per-region
// history and derives trend statistics from it.
package history

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sells-group/copper-cli/internal/model"
)

// Result is the outcome of a reconciliation.
type Result struct {
	// History is the new snapshot, ascending by date.
	History []model.PriceRecord
	// Added holds the inserted records as they appear in History.
	Added []model.PriceRecord
	// Skipped counts candidates whose (region, date) slot was already taken.
	Skipped int
}

// Reconcile merges incoming into existing and returns a new snapshot.
// Neither input is modified.
//
// A candidate whose (region, date) is already present, in existing or
// earlier in incoming, is skipped. An inserted record's Change is its price
// minus the chronologically preceding record of the same region, or zero for
// the first record of a region. If a record lands before existing records of
// its region, the immediate successor is replaced by a copy with its Change
// recomputed so adjacent records stay consistent. Ties on date keep
// insertion order.
func Reconcile(existing, incoming []model.PriceRecord) Result {
	if len(incoming) == 0 {
		return Result{History: slices.Clone(existing)}
	}

	seen := make(map[model.RecordKey]bool, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Key()] = true
	}

	merged := slices.Clone(existing)
	added := make(map[model.RecordKey]bool, len(incoming))
	skipped := 0
	for _, r := range incoming {
		if seen[r.Key()] {
			skipped++
			continue
		}
		seen[r.Key()] = true
		added[r.Key()] = true
		merged = append(merged, r)
	}

	if len(added) == 0 {
		return Result{History: merged, Skipped: skipped}
	}

	sortByDate(merged)

	// Walk each region in date order. New records and the record following a
	// new one get their Change recomputed; everything else is left alone.
	prev := make(map[string]int, 4)
	prevIsNew := make(map[string]bool, 4)
	var out []model.PriceRecord
	for i := range merged {
		r := merged[i]
		isNew := added[r.Key()]
		if isNew || prevIsNew[r.Region] {
			if j, ok := prev[r.Region]; ok {
				merged[i].Change = r.Price - merged[j].Price
			} else {
				merged[i].Change = 0
			}
		}
		if isNew {
			out = append(out, merged[i])
		}
		prev[r.Region] = i
		prevIsNew[r.Region] = isNew
	}

	return Result{History: merged, Added: out, Skipped: skipped}
}

// Contains reports whether h already holds a record for region on date.
func Contains(h []model.PriceRecord, region, date string) bool {
	for _, r := range h {
		if r.Region == region && r.Date == date {
			return true
		}
	}
	return false
}

// Region returns the records of one region in history order.
func Region(h []model.PriceRecord, region string) []model.PriceRecord {
	var out []model.PriceRecord
	for _, r := range h {
		if r.Region == region {
			out = append(out, r)
		}
	}
	return out
}

// Validate checks ordering, per-region date uniqueness and the Change
// adjacency rule. It returns one message per violation.
func Validate(h []model.PriceRecord) []string {
	var problems []string
	seen := make(map[model.RecordKey]bool, len(h))
	last := make(map[string]model.PriceRecord)
	for i, r := range h {
		if i > 0 && h[i-1].Date > r.Date {
			problems = append(problems, fmt.Sprintf("record %d (%s) is before record %d (%s)", i, r.Date, i-1, h[i-1].Date))
		}
		if seen[r.Key()] {
			problems = append(problems, fmt.Sprintf("duplicate %s/%s", r.Region, r.Date))
		}
		seen[r.Key()] = true

		want := 0.0
		if p, ok := last[r.Region]; ok {
			want = r.Price - p.Price
		}
		if r.Change != want {
			problems = append(problems, fmt.Sprintf("%s/%s change %.2f, want %.2f", r.Region, r.Date, r.Change, want))
		}
		last[r.Region] = r
	}
	return problems
}

func sortByDate(h []model.PriceRecord) {
	slices.SortStableFunc(h, func(a, b model.PriceRecord) int {
		return strings.Compare(a.Date, b.Date)
	})
}
