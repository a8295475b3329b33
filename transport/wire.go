package transport

import (
	"github.com/fontserve/fontserve/change"
	"github.com/fontserve/fontserve/pattern"
)

// envelopeType names which of the three Proxy calls a message carries.
type envelopeType string

const (
	envelopeExternalChange    envelopeType = "externalChange"
	envelopeReloadData        envelopeType = "reloadData"
	envelopeMessageFromServer envelopeType = "messageFromServer"
)

// envelope is the single wire message shape every outbound notification
// travels in. Exactly one of Change/Pattern/Title+Body is populated,
// selected by Type.
type envelope struct {
	Type    envelopeType  `json:"type"`
	Change  *wireChange   `json:"change,omitempty"`
	Live    bool          `json:"live,omitempty"`
	Pattern wirePattern   `json:"pattern,omitempty"`
	Title   string        `json:"title,omitempty"`
	Body    string        `json:"body,omitempty"`
}

// wireSegment mirrors pattern.Segment, whose fields are unexported and so
// cannot round-trip through encoding/json on its own.
type wireSegment struct {
	Str   string `json:"s,omitempty"`
	Num   int    `json:"n,omitempty"`
	IsNum bool   `json:"i,omitempty"`
}

func toWireSegment(seg pattern.Segment) wireSegment {
	if seg.IsIndex() {
		return wireSegment{Num: seg.Index(), IsNum: true}
	}
	return wireSegment{Str: seg.String()}
}

func fromWireSegment(w wireSegment) pattern.Segment {
	if w.IsNum {
		return pattern.Index(w.Num)
	}
	return pattern.Key(w.Str)
}

// wirePath mirrors pattern.Path.
type wirePath []wireSegment

func toWirePath(p pattern.Path) wirePath {
	out := make(wirePath, len(p))
	for i, seg := range p {
		out[i] = toWireSegment(seg)
	}
	return out
}

func fromWirePath(w wirePath) pattern.Path {
	out := make(pattern.Path, len(w))
	for i, seg := range w {
		out[i] = fromWireSegment(seg)
	}
	return out
}

// wireChange mirrors change.Change, which embeds pattern.Path directly and
// so needs the same Segment translation at every level of the tree.
type wireChange struct {
	Path     wirePath     `json:"p,omitempty"`
	Op       change.Op    `json:"f,omitempty"`
	Value    any          `json:"v,omitempty"`
	Children []wireChange `json:"c,omitempty"`
}

func toWireChange(c change.Change) *wireChange {
	w := &wireChange{
		Path:  toWirePath(c.Path),
		Op:    c.Op,
		Value: c.Value,
	}
	if len(c.Children) > 0 {
		w.Children = make([]wireChange, len(c.Children))
		for i, child := range c.Children {
			w.Children[i] = *toWireChange(child)
		}
	}
	return w
}

func fromWireChange(w *wireChange) change.Change {
	if w == nil {
		return change.Change{}
	}
	c := change.Change{
		Path:  fromWirePath(w.Path),
		Op:    w.Op,
		Value: w.Value,
	}
	if len(w.Children) > 0 {
		c.Children = make([]change.Change, len(w.Children))
		for i := range w.Children {
			c.Children[i] = fromWireChange(&w.Children[i])
		}
	}
	return c
}

// wirePattern mirrors pattern.Pattern (map[Segment]*Pattern), encoded as a
// flat list of entries since Segment cannot serve as a JSON object key.
// A nil Child marks the sentinel: "this prefix and everything below it".
type wirePattern []wirePatternEntry

type wirePatternEntry struct {
	Seg   wireSegment `json:"seg"`
	Child wirePattern `json:"child,omitempty"`
}

func toWirePattern(p pattern.Pattern) wirePattern {
	if len(p) == 0 {
		return wirePattern{}
	}
	out := make(wirePattern, 0, len(p))
	for seg, child := range p {
		entry := wirePatternEntry{Seg: toWireSegment(seg)}
		if child != nil {
			entry.Child = toWirePattern(*child)
		}
		out = append(out, entry)
	}
	return out
}

func fromWirePattern(w wirePattern) pattern.Pattern {
	out := pattern.Pattern{}
	for _, entry := range w {
		seg := fromWireSegment(entry.Seg)
		if entry.Child == nil {
			out[seg] = nil
			continue
		}
		sub := fromWirePattern(entry.Child)
		out[seg] = &sub
	}
	return out
}
