// Package font holds the data model fonthandler operates on: a Font is a
// sparse bundle of root-level values (axes, a glyph map, custom data, units
// per em) plus a table of glyphs. Glyphs themselves are kept opaque — the
// handler never interprets their contents beyond discovering which other
// glyphs they reference as components, so VariableGlyph is modeled as a
// generic, JSON-shaped tree rather than a typed outline format.
package font

import (
	"encoding/json"

	"github.com/fontserve/fontserve/errors"
	"github.com/fontserve/fontserve/pattern"
)

// GlyphName identifies a glyph within a Font.
type GlyphName = string

// DataKey names one unit of cacheable/writable font data: either a root-level
// key ("axes", "glyphMap", "customData", "unitsPerEm") or a single glyph
// ("glyphs", <name>). It is the granularity the LRU cache, the write
// scheduler, and the dependency tracker all key on.
type DataKey struct {
	Root  string
	Glyph GlyphName
}

// RootKey builds the DataKey for a non-glyph root value.
func RootKey(root string) DataKey { return DataKey{Root: root} }

// GlyphKey builds the DataKey for a single glyph.
func GlyphKey(name GlyphName) DataKey { return DataKey{Root: "glyphs", Glyph: name} }

// IsGlyph reports whether the key addresses a glyph rather than a root value.
func (k DataKey) IsGlyph() bool { return k.Root == "glyphs" && k.Glyph != "" }

func (k DataKey) String() string {
	if k.IsGlyph() {
		return "glyphs/" + k.Glyph
	}
	return k.Root
}

// Path renders the key as a pattern.Path, for use against subscription and
// dependency patterns.
func (k DataKey) Path() pattern.Path {
	if k.IsGlyph() {
		return pattern.FromStrings(k.Root, k.Glyph)
	}
	return pattern.FromStrings(k.Root)
}

// Axis is one variation axis of a variable font.
type Axis struct {
	Name     string  `json:"name"`
	Tag      string  `json:"tag,omitempty"`
	Minimum  float64 `json:"minValue"`
	Default  float64 `json:"defaultValue"`
	Maximum  float64 `json:"maxValue"`
	Hidden   bool    `json:"hidden,omitempty"`
}

// Axes is the font-wide list of variation axes (root key "axes").
type Axes []Axis

// GlyphMap maps a glyph name to the Unicode codepoints it represents (root
// key "glyphMap").
type GlyphMap map[GlyphName][]int

// CustomData is arbitrary font-wide metadata (root key "customData").
type CustomData map[string]any

// VariableGlyph is an opaque, JSON-shaped editable glyph. The handler only
// ever replaces, deletes, or deep-copies whole VariableGlyph values and
// inspects component references through ComponentNames; everything else
// inside Layers is free-form data owned by whatever backend and editor
// produced it.
type VariableGlyph struct {
	Layers map[string]any `json:"layers,omitempty"`
}

// NewVariableGlyph returns an empty glyph shell with no layers.
func NewVariableGlyph() *VariableGlyph {
	return &VariableGlyph{Layers: map[string]any{}}
}

// Get, Set, and Delete make *VariableGlyph itself a change.Container (see
// package change), so a Change that reaches past a glyph's name into its
// layer tree (e.g. "glyphs/A/layers/master1/...") can keep navigating
// through the typed struct instead of stopping at it. Layers is the only
// addressable field; fonthandler never assigns anything else onto a glyph.
func (g *VariableGlyph) Get(key string) (any, bool) {
	if key != "layers" {
		return nil, false
	}
	if g.Layers == nil {
		return nil, false
	}
	return g.Layers, true
}

func (g *VariableGlyph) Set(key string, value any) {
	if key != "layers" {
		return
	}
	m, ok := value.(map[string]any)
	if !ok {
		return
	}
	g.Layers = m
}

func (g *VariableGlyph) Delete(key string) {
	if key == "layers" {
		g.Layers = nil
	}
}

// ComponentNames returns the names of every component referenced by any
// layer of the glyph, deduplicated. It walks the opaque layer tree
// defensively: a layer missing the expected "glyph"/"components"/"name"
// shape simply contributes no names, rather than panicking.
func (g *VariableGlyph) ComponentNames() []string {
	if g == nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, layer := range g.Layers {
		layerMap, ok := layer.(map[string]any)
		if !ok {
			continue
		}
		glyphData, ok := layerMap["glyph"].(map[string]any)
		if !ok {
			continue
		}
		components, ok := glyphData["components"].([]any)
		if !ok {
			continue
		}
		for _, c := range components {
			compMap, ok := c.(map[string]any)
			if !ok {
				continue
			}
			name, ok := compMap["name"].(string)
			if !ok || name == "" || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// Clone deep-copies the glyph. The edit coordinator and write scheduler must
// never let two goroutines observe the same mutable glyph value, so every
// value crossing into the cache or onto the write queue passes through
// Clone first.
func (g *VariableGlyph) Clone() (*VariableGlyph, error) {
	if g == nil {
		return nil, nil
	}
	data, err := json.Marshal(g)
	if err != nil {
		return nil, errors.Wrap(err, "font: marshal glyph for clone")
	}
	clone := &VariableGlyph{}
	if err := json.Unmarshal(data, clone); err != nil {
		return nil, errors.Wrap(err, "font: unmarshal glyph for clone")
	}
	return clone, nil
}

// CloneAny deep-copies an arbitrary root value (Axes, GlyphMap, CustomData,
// int) via a JSON round trip, mirroring Clone's guarantee for non-glyph
// DataKeys.
func CloneAny(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "font: marshal value for clone")
	}
	switch v.(type) {
	case Axes:
		var out Axes
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, errors.Wrap(err, "font: unmarshal axes for clone")
		}
		return out, nil
	case GlyphMap:
		var out GlyphMap
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, errors.Wrap(err, "font: unmarshal glyphMap for clone")
		}
		return out, nil
	case CustomData:
		var out CustomData
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, errors.Wrap(err, "font: unmarshal customData for clone")
		}
		return out, nil
	case int:
		var out int
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, errors.Wrap(err, "font: unmarshal int for clone")
		}
		return out, nil
	default:
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, errors.Wrap(err, "font: unmarshal value for clone")
		}
		return out, nil
	}
}
