// Package pattern implements a path/pattern lattice used to describe
// selections over a nested document: a pattern contains a path iff
// walking the path through the pattern terminates at a sentinel or at an
// empty mapping.
package pattern

import "strconv"

// Segment is one element of a Path: either a string key (a field name, a
// glyph name, a root data key) or an integer index (a list position).
type Segment struct {
	str   string
	num   int
	isNum bool
}

// Key builds a string segment.
func Key(s string) Segment { return Segment{str: s} }

// Index builds an integer segment.
func Index(i int) Segment { return Segment{num: i, isNum: true} }

// IsIndex reports whether the segment is an integer index.
func (s Segment) IsIndex() bool { return s.isNum }

// Index returns the segment's integer value. Only meaningful when IsIndex
// reports true.
func (s Segment) Index() int { return s.num }

// String renders the segment for logging/debugging.
func (s Segment) String() string {
	if s.isNum {
		return strconv.Itoa(s.num)
	}
	return s.str
}

// Path is an ordered sequence of segments locating a node inside a Font.
type Path []Segment

// FromStrings builds a Path out of plain strings, a convenience for the
// common case of root-key/glyph-name paths.
func FromStrings(parts ...string) Path {
	p := make(Path, len(parts))
	for i, s := range parts {
		p[i] = Key(s)
	}
	return p
}

// Pattern is a tree-shaped set of paths. A nil value at a key is the
// sentinel: it means "this path, and everything below it, is selected".
// A non-nil value is a nested Pattern describing which sub-keys are
// selected.
type Pattern map[Segment]*Pattern

// Empty returns the pattern that matches nothing — the default value
// for a fresh subscription tier.
func Empty() Pattern { return Pattern{} }

// FromPath builds the pattern that contains exactly the paths with path
// as a prefix (path itself, and anything below it).
func FromPath(path Path) Pattern {
	if len(path) == 0 {
		return Pattern{}
	}
	return Pattern{path[0]: leafFor(path[1:])}
}

func leafFor(rest Path) *Pattern {
	if len(rest) == 0 {
		return nil // sentinel: matches this prefix and everything below it
	}
	p := FromPath(rest)
	return &p
}

// Contains reports whether pattern p selects path.
func Contains(p Pattern, path Path) bool {
	node := p
	for i, seg := range path {
		child, ok := node[seg]
		if !ok {
			return false
		}
		if child == nil {
			return true // sentinel: matches this prefix and everything below it
		}
		if i == len(path)-1 {
			return len(*child) == 0
		}
		node = *child
	}
	return len(node) == 0
}

func clone(p Pattern) Pattern {
	out := make(Pattern, len(p))
	for k, v := range p {
		out[k] = clonePtr(v)
	}
	return out
}

func clonePtr(p *Pattern) *Pattern {
	if p == nil {
		return nil
	}
	c := clone(*p)
	return &c
}

// Union returns the pattern matching a path iff a or b matches it.
func Union(a, b Pattern) Pattern {
	out := clone(a)
	for k, bv := range b {
		av, exists := out[k]
		switch {
		case !exists:
			out[k] = clonePtr(bv)
		case av == nil || bv == nil:
			out[k] = nil
		default:
			merged := Union(*av, *bv)
			out[k] = &merged
		}
	}
	return out
}

// Difference returns the pattern matching a path iff a matches it and b
// does not. When a holds an unqualified sentinel at some key and b only
// carves out specific sub-paths beneath that key, the sentinel is kept
// as-is: this lattice has no way to represent "everything except a named
// subset" without a negated encoding, so the broader match wins. In
// practice this only matters when the same key is subscribed with a
// full-subtree pattern and then partially unsubscribed with a narrower
// one, which editFinal/subscribeChanges never do to the same pattern.
func Difference(a, b Pattern) Pattern {
	out := clone(a)
	for k, bv := range b {
		av, exists := out[k]
		if !exists {
			continue
		}
		switch {
		case bv == nil:
			delete(out, k)
		case av == nil:
			continue
		default:
			sub := Difference(*av, *bv)
			if len(sub) == 0 {
				delete(out, k)
			} else {
				out[k] = &sub
			}
		}
	}
	return out
}

// Intersect returns the pattern matching a path iff both a and b match it.
func Intersect(a, b Pattern) Pattern {
	out := Pattern{}
	for k, av := range a {
		bv, exists := b[k]
		if !exists {
			continue
		}
		switch {
		case av == nil:
			out[k] = clonePtr(bv)
		case bv == nil:
			out[k] = clonePtr(av)
		default:
			sub := Intersect(*av, *bv)
			if len(sub) > 0 {
				out[k] = &sub
			}
		}
	}
	return out
}

// CollectPaths returns the path prefixes of exactly the given depth found
// in pattern p, e.g. the root keys (depth 1) or the glyph names under
// "glyphs" (depth 2) a pattern selects. Contrast change.CollectPaths,
// which walks a Change instead of a Pattern and is the one the edit
// coordinator uses.
func CollectPaths(p Pattern, depth int) []Path {
	var out []Path
	var walk func(node Pattern, prefix Path, remaining int)
	walk = func(node Pattern, prefix Path, remaining int) {
		if remaining == 0 {
			cp := make(Path, len(prefix))
			copy(cp, prefix)
			out = append(out, cp)
			return
		}
		for k, v := range node {
			next := append(append(Path{}, prefix...), k)
			if v == nil {
				if remaining == 1 {
					cp := make(Path, len(next))
					copy(cp, next)
					out = append(out, cp)
				}
				continue
			}
			walk(*v, next, remaining-1)
		}
	}
	walk(p, nil, depth)
	return out
}
