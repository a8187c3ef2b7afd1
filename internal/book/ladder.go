// Package book reconstructs the local order book of the two legs of one
// binary question from feed snapshots and incremental changes.
package book

import (
	"sort"

	"github.com/alanyoungcy/polyquoter/internal/domain"
)

// Ladder is one side of one leg's book. Position 0 is treated as best.
type Ladder []domain.PriceLevel

// newBidLadder builds a ladder sorted strictly descending by price.
func newBidLadder(levels []domain.PriceLevel) Ladder {
	l := dedupe(levels)
	sort.SliceStable(l, func(i, j int) bool { return l[i].Price.GreaterThan(l[j].Price) })
	return l
}

// newAskLadder builds a ladder sorted strictly ascending by price.
func newAskLadder(levels []domain.PriceLevel) Ladder {
	l := dedupe(levels)
	sort.SliceStable(l, func(i, j int) bool { return l[i].Price.LessThan(l[j].Price) })
	return l
}

// dedupe copies levels keeping the last occurrence of each price.
func dedupe(levels []domain.PriceLevel) Ladder {
	out := make(Ladder, 0, len(levels))
	for _, lvl := range levels {
		if i := Ladder(out).index(lvl); i >= 0 {
			out[i].Size = lvl.Size
			continue
		}
		out = append(out, lvl)
	}
	return out
}

func (l Ladder) index(lvl domain.PriceLevel) int {
	for i := range l {
		if l[i].Price.Equal(lvl.Price) {
			return i
		}
	}
	return -1
}

// upsert overwrites the size of an existing level in place, or appends a new
// level and re-sorts the whole ladder descending. Levels are never removed,
// whatever the size.
func (l Ladder) upsert(c domain.LevelChange) Ladder {
	lvl := domain.PriceLevel{Price: c.Price, Size: c.Size}
	if i := l.index(lvl); i >= 0 {
		l[i].Size = c.Size
		return l
	}
	l = append(l, lvl)
	sort.SliceStable(l, func(i, j int) bool { return l[i].Price.GreaterThan(l[j].Price) })
	return l
}

// Best returns the level at position 0.
func (l Ladder) Best() (domain.PriceLevel, bool) {
	if len(l) == 0 {
		return domain.PriceLevel{}, false
	}
	return l[0], true
}

// Clone returns a copy that shares no backing array with l.
func (l Ladder) Clone() Ladder {
	if l == nil {
		return nil
	}
	out := make(Ladder, len(l))
	copy(out, l)
	return out
}
