// Package merging resolves duplicate records down to one survivor per
// natural key using a deterministic ranking.
package merging

import (
	"sort"
	"strings"
	"time"
)

// Criterion compares two candidates. A negative result ranks a ahead of b,
// positive ranks b ahead, zero defers to the next criterion.
type Criterion[T any] func(a, b T) int

// Rank chains criteria into a strict ordering. Candidates equal on every
// criterion keep their source order.
func Rank[T any](criteria ...Criterion[T]) func(a, b T) bool {
	return func(a, b T) bool {
		for _, criterion := range criteria {
			if c := criterion(a, b); c != 0 {
				return c < 0
			}
		}
		return false
	}
}

// PreferTrue ranks candidates where fn holds first.
func PreferTrue[T any](fn func(T) bool) Criterion[T] {
	return func(a, b T) int {
		av, bv := fn(a), fn(b)
		switch {
		case av == bv:
			return 0
		case av:
			return -1
		default:
			return 1
		}
	}
}

// PreferHigher ranks larger values first.
func PreferHigher[T any](fn func(T) int) Criterion[T] {
	return func(a, b T) int {
		return fn(b) - fn(a)
	}
}

// PreferLater ranks later times first; nil sorts last.
func PreferLater[T any](fn func(T) *time.Time) Criterion[T] {
	return func(a, b T) int {
		return compareTimes(fn(a), fn(b), true)
	}
}

// PreferEarlier ranks earlier times first; nil sorts last.
func PreferEarlier[T any](fn func(T) *time.Time) Criterion[T] {
	return func(a, b T) int {
		return compareTimes(fn(a), fn(b), false)
	}
}

// PreferLowerString ranks lexicographically smaller values first.
func PreferLowerString[T any](fn func(T) string) Criterion[T] {
	return func(a, b T) int {
		return strings.Compare(fn(a), fn(b))
	}
}

func compareTimes(a, b *time.Time, laterFirst bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Equal(*b):
		return 0
	}
	if a.After(*b) == laterFirst {
		return -1
	}
	return 1
}

// Group is the ranked membership of one contested key.
type Group[T any] struct {
	Key     string
	Members []T
}

type Resolution[T any] struct {
	Survivors []T
	// Removed holds the non-surviving members, grouped by key in ranking order.
	Removed []T
	// Merged lists every key that had more than one candidate.
	Merged []Group[T]

	mergedKeys map[string]bool
}

// IsMerged reports whether key had more than one candidate.
func (r *Resolution[T]) IsMerged(key string) bool {
	return r.mergedKeys[key]
}

// Resolver keeps the best-ranked candidate per key.
type Resolver[T any] struct {
	Key func(T) string
	// Less ranks candidates within a key. Nil keeps the first occurrence.
	Less func(a, b T) bool
	// SortByKey orders survivors by key; otherwise they keep first-seen order.
	SortByKey bool
}

func (r *Resolver[T]) Resolve(records []T) Resolution[T] {
	order := make([]string, 0, len(records))
	groups := make(map[string][]T, len(records))
	for _, rec := range records {
		key := r.Key(rec)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}

	if r.SortByKey {
		sort.Strings(order)
	}

	res := Resolution[T]{
		Survivors:  make([]T, 0, len(order)),
		mergedKeys: make(map[string]bool),
	}
	for _, key := range order {
		members := groups[key]
		if r.Less != nil && len(members) > 1 {
			sort.SliceStable(members, func(i, j int) bool {
				return r.Less(members[i], members[j])
			})
		}
		res.Survivors = append(res.Survivors, members[0])
		if len(members) > 1 {
			res.Removed = append(res.Removed, members[1:]...)
			res.Merged = append(res.Merged, Group[T]{Key: key, Members: members})
			res.mergedKeys[key] = true
		}
	}
	return res
}

// DropExact removes records whose fingerprint was already seen, keeping the
// first occurrence.
func DropExact[T any](records []T, fingerprint func(T) string) ([]T, int) {
	seen := make(map[string]bool, len(records))
	kept := make([]T, 0, len(records))
	for _, rec := range records {
		fp := fingerprint(rec)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		kept = append(kept, rec)
	}
	return kept, len(records) - len(kept)
}
