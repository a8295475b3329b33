// Package change implements an edit-description algebra: Apply, Match,
// Filter, and CollectPaths over a Change value. A Change is a
// path-anchored, optionally hierarchical tree of operations that can be
// applied to a generic document, matched or filtered against a
// pattern.Pattern, and walked to discover which paths it touches.
package change

import (
	"strings"

	"github.com/fontserve/fontserve/errors"
	"github.com/fontserve/fontserve/pattern"
)

// Op names the mutation a leaf Change performs.
type Op string

const (
	// OpReplace sets the value at Path, creating intermediate containers
	// as needed. The zero Op behaves as OpReplace.
	OpReplace Op = "replace"
	// OpDelete removes the key at Path from its parent container.
	OpDelete Op = "delete"
)

// Change is one node of an edit description. A leaf Change (no Children)
// applies Op at Path. A container Change (Children non-empty) has no Op of
// its own: Path names a sub-document, and each child is applied relative to
// it — this lets a single edit batch many field-level changes under a
// shared prefix (e.g. several glyphs changing in one edit) without
// repeating the common path.
type Change struct {
	Path     pattern.Path `json:"p,omitempty"`
	Op       Op           `json:"f,omitempty"`
	Value    any          `json:"v,omitempty"`
	Children []Change     `json:"c,omitempty"`
}

// Replace builds a leaf Change that sets path to value.
func Replace(path pattern.Path, value any) Change {
	return Change{Path: path, Op: OpReplace, Value: value}
}

// Delete builds a leaf Change that removes path from its parent container.
func Delete(path pattern.Path) Change {
	return Change{Path: path, Op: OpDelete}
}

// Container is anything that can stand in for a map node during Apply.
// font.VariableGlyph's mutation-tracking wrapper (fonthandler package)
// implements this so that applying a change under "glyphs" is observed by
// the dependency tracker the same way a plain map mutation would be.
type Container interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
}

// Apply mutates root in place according to c. root must be a map[string]any
// or a Container (fonthandler's sparse root assembly and mutation-tracking
// glyph set both qualify), or an error is returned.
func Apply(root any, c Change) error {
	return applyNode(root, c)
}

func applyNode(node any, c Change) error {
	if len(c.Children) > 0 {
		sub, err := getOrCreate(node, c.Path)
		if err != nil {
			return err
		}
		for _, child := range c.Children {
			if err := applyNode(sub, child); err != nil {
				return err
			}
		}
		return nil
	}

	if len(c.Path) == 0 {
		return errors.New("change: leaf change requires a non-empty path")
	}

	parent, err := getOrCreate(node, c.Path[:len(c.Path)-1])
	if err != nil {
		return err
	}
	last := c.Path[len(c.Path)-1]

	switch c.Op {
	case OpDelete:
		return deleteKey(parent, last)
	case OpReplace, "":
		return setKey(parent, last, c.Value)
	default:
		return errors.Newf("change: unknown operator %q", c.Op)
	}
}

// getOrCreate walks path through node, creating map[string]any containers
// for missing string-keyed intermediates, and returns the container the
// final segment lives in.
func getOrCreate(node any, path pattern.Path) (any, error) {
	cur := node
	for _, seg := range path {
		next, err := childOf(cur, seg, true)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func childOf(node any, seg pattern.Segment, create bool) (any, error) {
	switch n := node.(type) {
	case map[string]any:
		if seg.IsIndex() {
			return nil, errors.Newf("change: cannot index a map with %s", seg)
		}
		key := seg.String()
		child, ok := n[key]
		if !ok {
			if !create {
				return nil, errors.Newf("change: missing key %q", key)
			}
			child = map[string]any{}
			n[key] = child
		}
		return child, nil
	case Container:
		key := seg.String()
		child, ok := n.Get(key)
		if !ok {
			if !create {
				return nil, errors.Newf("change: missing key %q", key)
			}
			child = map[string]any{}
			n.Set(key, child)
		}
		return child, nil
	case []any:
		if !seg.IsIndex() {
			return nil, errors.Newf("change: cannot key a list with %q", seg.String())
		}
		idx := seg.Index()
		if idx < 0 || idx >= len(n) {
			return nil, errors.Newf("change: list index %d out of range", idx)
		}
		return n[idx], nil
	default:
		return nil, errors.Newf("change: cannot navigate into value of type %T", node)
	}
}

func setKey(parent any, seg pattern.Segment, value any) error {
	switch p := parent.(type) {
	case map[string]any:
		if seg.IsIndex() {
			return errors.Newf("change: cannot index a map with %s", seg)
		}
		p[seg.String()] = value
		return nil
	case Container:
		p.Set(seg.String(), value)
		return nil
	case []any:
		if !seg.IsIndex() {
			return errors.Newf("change: cannot key a list with %q", seg.String())
		}
		idx := seg.Index()
		if idx < 0 || idx >= len(p) {
			return errors.Newf("change: list index %d out of range", idx)
		}
		p[idx] = value
		return nil
	default:
		return errors.Newf("change: cannot set a key on value of type %T", parent)
	}
}

func deleteKey(parent any, seg pattern.Segment) error {
	switch p := parent.(type) {
	case map[string]any:
		delete(p, seg.String())
		return nil
	case Container:
		p.Delete(seg.String())
		return nil
	default:
		return errors.Newf("change: cannot delete a key from value of type %T", parent)
	}
}

// CollectPaths returns the distinct path prefixes, truncated to depth, that
// c's leaf operations touch. It is the Change-side counterpart of
// pattern.CollectPaths, used by the edit coordinator to discover which root
// keys (depth 1) or glyph names (depth 2) an incoming edit affects.
func CollectPaths(c Change, depth int) []pattern.Path {
	var out []pattern.Path
	seen := map[string]bool{}
	var walk func(prefix pattern.Path, node Change)
	walk = func(prefix pattern.Path, node Change) {
		full := joinPath(prefix, node.Path)
		if len(node.Children) > 0 {
			for _, child := range node.Children {
				walk(full, child)
			}
			return
		}
		if len(full) < depth {
			return
		}
		trunc := full[:depth]
		key := pathKey(trunc)
		if !seen[key] {
			seen[key] = true
			out = append(out, trunc)
		}
	}
	walk(nil, c)
	return out
}

// Match reports whether any path c's leaf operations touch is contained by
// p, i.e. whether a subscriber watching p needs to hear about c.
func Match(c Change, p pattern.Pattern) bool {
	matched := false
	var walk func(prefix pattern.Path, node Change)
	walk = func(prefix pattern.Path, node Change) {
		if matched {
			return
		}
		full := joinPath(prefix, node.Path)
		if len(node.Children) > 0 {
			for _, child := range node.Children {
				walk(full, child)
				if matched {
					return
				}
			}
			return
		}
		if pattern.Contains(p, full) {
			matched = true
		}
	}
	walk(nil, c)
	return matched
}

// Filter returns the sub-change of c containing only the leaf operations
// whose path is selected by p, preserving c's hierarchical shape. ok is
// false if nothing in c matches p.
func Filter(c Change, p pattern.Pattern) (Change, bool) {
	return filterNode(nil, c, p)
}

func filterNode(prefix pattern.Path, c Change, p pattern.Pattern) (Change, bool) {
	full := joinPath(prefix, c.Path)

	if len(c.Children) == 0 {
		if pattern.Contains(p, full) {
			return c, true
		}
		return Change{}, false
	}

	var kept []Change
	for _, child := range c.Children {
		if fc, ok := filterNode(full, child, p); ok {
			kept = append(kept, fc)
		}
	}
	if len(kept) == 0 {
		return Change{}, false
	}
	return Change{Path: c.Path, Children: kept}, true
}

func joinPath(prefix, rest pattern.Path) pattern.Path {
	full := make(pattern.Path, 0, len(prefix)+len(rest))
	full = append(full, prefix...)
	full = append(full, rest...)
	return full
}

func pathKey(p pattern.Path) string {
	var sb strings.Builder
	for _, seg := range p {
		sb.WriteString(seg.String())
		sb.WriteByte(0)
	}
	return sb.String()
}
