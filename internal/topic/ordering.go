package topic

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortKey is the closed set of orderings List supports.
type SortKey int

const (
	SortCreatedAt SortKey = iota
	SortUpdatedAt
	SortName
	SortSize
	SortDuration
)

var sortKeyNames = map[SortKey]string{
	SortCreatedAt: "created",
	SortUpdatedAt: "updated",
	SortName:      "name",
	SortSize:      "size",
	SortDuration:  "duration",
}

func (k SortKey) String() string {
	if name, ok := sortKeyNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseSortKey maps a user-facing name onto a SortKey. Empty input selects SortCreatedAt.
func ParseSortKey(value string) (SortKey, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return SortCreatedAt, true
	}
	for key, name := range sortKeyNames {
		if name == value {
			return key, true
		}
	}
	return 0, false
}

type comparator func(a, b *Topic) int

// comparators is built once; SortName is bound per call because collators are not safe for concurrent use.
var comparators = map[SortKey]comparator{
	SortCreatedAt: func(a, b *Topic) int { return a.CreatedAt.Compare(b.CreatedAt) },
	SortUpdatedAt: func(a, b *Topic) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
	SortSize:      func(a, b *Topic) int { return cmp.Compare(a.Media.Size, b.Media.Size) },
	SortDuration:  func(a, b *Topic) int { return cmp.Compare(a.Media.Length, b.Media.Length) },
}

func nameComparator() comparator {
	collator := collate.New(language.Und, collate.IgnoreCase, collate.Loose)
	return func(a, b *Topic) int { return collator.CompareString(a.Name, b.Name) }
}

// Sort orders topics in place by key, breaking ties by id so results are stable.
func Sort(topics []*Topic, key SortKey, desc bool) {
	compare, ok := comparators[key]
	if key == SortName {
		compare, ok = nameComparator(), true
	}
	if !ok {
		compare = comparators[SortCreatedAt]
	}
	slices.SortStableFunc(topics, func(a, b *Topic) int {
		c := compare(a, b)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if desc {
			return -c
		}
		return c
	})
}
