package alerting

import (
	"sort"

	"github.com/leozw/portfolio-guardian/internal/core"
)

// Ranked is anything that can be ordered for alerting.
type Ranked interface {
	RankSeverity() core.Severity
	// RankOverdue is how far past its threshold the entity is. Larger sorts first.
	RankOverdue() float64
	RankID() string
}

// Rank sorts items by severity desc, then overdue-ness desc, then ID asc.
// The result is independent of the input order.
func Rank[T Ranked](items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.RankSeverity() != b.RankSeverity() {
			return a.RankSeverity() > b.RankSeverity()
		}
		if a.RankOverdue() != b.RankOverdue() {
			return a.RankOverdue() > b.RankOverdue()
		}
		return a.RankID() < b.RankID()
	})
}

// Top returns the first n items, or all of them when n is not positive or
// exceeds the length.
func Top[T any](items []T, n int) []T {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[:n]
}
