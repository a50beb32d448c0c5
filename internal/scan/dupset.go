package scan

import "sort"

// SizeGroups maps a byte size to the paths of that size, in discovery order.
// Singleton groups are kept; GroupByHash ignores them.
type SizeGroups map[int64][]string

// FileCount returns the number of paths across all size groups
func (sg SizeGroups) FileCount() int {
	n := 0
	for _, paths := range sg {
		n += len(paths)
	}
	return n
}

// Candidates returns the number of paths that share their size with at least
// one other path, i.e. the number of files GroupByHash will digest
func (sg SizeGroups) Candidates() int {
	n := 0
	for _, paths := range sg {
		if len(paths) > 1 {
			n += len(paths)
		}
	}
	return n
}

// sortedSizes returns the keys in ascending order so hashing is deterministic
func (sg SizeGroups) sortedSizes() []int64 {
	sizes := make([]int64, 0, len(sg))
	for size := range sg {
		sizes = append(sizes, size)
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })
	return sizes
}

// Group is a set of paths sharing one content digest.
// Size is the size of the first member.
type Group struct {
	Digest string   `json:"digest"`
	Size   int64    `json:"size"`
	Paths  []string `json:"paths"`
}

// Len returns the number of paths in the group
func (g *Group) Len() int {
	return len(g.Paths)
}

// DuplicateSet maps a digest to the group of paths sharing it.
// A raw set may hold singleton groups; actions consume Filtered().
type DuplicateSet map[string]*Group

func (s DuplicateSet) add(digest string, size int64, path string) {
	g, ok := s[digest]
	if !ok {
		g = &Group{Digest: digest, Size: size}
		s[digest] = g
	}
	g.Paths = append(g.Paths, path)
}

// Filtered returns only the groups with more than one path
func (s DuplicateSet) Filtered() DuplicateSet {
	out := make(DuplicateSet, len(s))
	for digest, g := range s {
		if g.Len() > 1 {
			out[digest] = g
		}
	}
	return out
}

// Groups returns the groups with more than one path, ordered by first path
func (s DuplicateSet) Groups() []*Group {
	groups := make([]*Group, 0, len(s))
	for _, g := range s {
		if g.Len() > 1 {
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Paths[0] < groups[j].Paths[0]
	})
	return groups
}

// FileCount returns the number of paths across groups with more than one path
func (s DuplicateSet) FileCount() int {
	n := 0
	for _, g := range s {
		if g.Len() > 1 {
			n += g.Len()
		}
	}
	return n
}
