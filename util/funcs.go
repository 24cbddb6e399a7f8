package util

import (
	"cmp"
	"slices"

	"github.com/hashicorp/go-set/v3"
)

// SortedSlice returns the elements of s in ascending order.
func SortedSlice[V cmp.Ordered](s *set.Set[V]) []V {
	out := s.Slice()
	slices.Sort(out)
	return out
}
