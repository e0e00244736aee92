package portfolio

import (
	"sort"
	"time"

	"TSIWatch/internal/model"
)

// Diff returns the tickers only in newTickers (added) and only in oldTickers
// (removed), sorted. Comparison is exact; callers normalize tickers first.
func Diff(oldTickers, newTickers []string) (added, removed []string) {
	oldSet := toSet(oldTickers)
	newSet := toSet(newTickers)
	for t := range newSet {
		if _, ok := oldSet[t]; !ok {
			added = append(added, t)
		}
	}
	for t := range oldSet {
		if _, ok := newSet[t]; !ok {
			removed = append(removed, t)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func toSet(tickers []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		set[t] = struct{}{}
	}
	return set
}

// Compare diffs two portfolios and returns the full rows of added and removed
// holdings. A nil old portfolio means every holding of next is new.
func Compare(old, next *model.Portfolio, at time.Time) model.MembershipChange {
	added, removed := Diff(old.Tickers(), next.Tickers())
	change := model.MembershipChange{At: at}
	for _, t := range added {
		e, _ := next.Get(t)
		change.Added = append(change.Added, e)
	}
	for _, t := range removed {
		e, _ := old.Get(t)
		change.Removed = append(change.Removed, e)
	}
	return change
}
