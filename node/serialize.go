package node

import (
	"bytes"
	"encoding/json"

	"github.com/defektu/node-oscquery/osctype"
)

// RangeEntry is the wire form of a Range: either a leaf {MIN,MAX,VALS}
// object, or — when Nested is non-nil — a JSON array of RangeEntry|null
// parallel to an array-typed argument's elements.
type RangeEntry struct {
	Min    *float64
	Max    *float64
	Vals   []any
	Nested []*RangeEntry
}

type rangeLeaf struct {
	Min  *float64 `json:"MIN,omitempty"`
	Max  *float64 `json:"MAX,omitempty"`
	Vals []any    `json:"VALS,omitempty"`
}

// MarshalJSON renders a leaf Range as an object and a nested Range as an
// array, matching the OSCQuery wire format for array-typed arguments.
func (r *RangeEntry) MarshalJSON() ([]byte, error) {
	if r.Nested != nil {
		return json.Marshal(r.Nested)
	}
	return json.Marshal(rangeLeaf{Min: r.Min, Max: r.Max, Vals: r.Vals})
}

// UnmarshalJSON parses a RangeEntry from either a leaf {MIN,MAX,VALS} object
// or a JSON array of RangeEntry|null (the array-typed-argument form),
// inverting MarshalJSON.
func (r *RangeEntry) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var nested []*RangeEntry
		if err := json.Unmarshal(trimmed, &nested); err != nil {
			return err
		}
		r.Nested = nested
		return nil
	}
	var leaf rangeLeaf
	if err := json.Unmarshal(trimmed, &leaf); err != nil {
		return err
	}
	r.Min, r.Max, r.Vals = leaf.Min, leaf.Max, leaf.Vals
	return nil
}

func (r *Range) toEntry() *RangeEntry {
	if r == nil {
		return nil
	}
	if r.Nested != nil {
		out := make([]*RangeEntry, len(r.Nested))
		for i, n := range r.Nested {
			out[i] = n.toEntry()
		}
		return &RangeEntry{Nested: out}
	}
	return &RangeEntry{Min: r.Min, Max: r.Max, Vals: r.Vals}
}

// SerializedNode is the wire JSON shape of a Node (§6 SerializedNode).
type SerializedNode struct {
	FullPath    string                     `json:"FULL_PATH"`
	Contents    map[string]*SerializedNode `json:"CONTENTS,omitempty"`
	Type        string                     `json:"TYPE,omitempty"`
	Access      *int                       `json:"ACCESS,omitempty"`
	Range       []*RangeEntry              `json:"RANGE,omitempty"`
	ClipMode    []*string                  `json:"CLIPMODE,omitempty"`
	Value       []any                      `json:"VALUE,omitempty"`
	Description string                     `json:"DESCRIPTION,omitempty"`
	Tags        []string                   `json:"TAGS,omitempty"`
	Critical    *bool                      `json:"CRITICAL,omitempty"`
}

// serialize produces the wire JSON object for n, recursing into children.
func (n *Node) serialize() *SerializedNode {
	s := &SerializedNode{FullPath: n.FullPath()}

	if len(n.children) > 0 {
		s.Contents = make(map[string]*SerializedNode, len(n.children))
		for name, c := range n.children {
			s.Contents[name] = c.serialize()
		}
	}

	if len(n.arguments) > 0 {
		types := make([]osctype.OSCType, len(n.arguments))
		for i, a := range n.arguments {
			types[i] = a.Type
		}
		s.Type = osctype.TypeTagString(types)

		anySet := false
		for _, a := range n.arguments {
			if a.Range != nil || a.ClipMode != "" || a.ValueSet {
				anySet = true
				break
			}
		}
		if anySet {
			s.Range = make([]*RangeEntry, len(n.arguments))
			s.ClipMode = make([]*string, len(n.arguments))
			s.Value = make([]any, len(n.arguments))
			for i, a := range n.arguments {
				if a.Range != nil {
					s.Range[i] = a.Range.toEntry()
				}
				if a.ClipMode != "" {
					cm := string(a.ClipMode)
					s.ClipMode[i] = &cm
				}
				if a.ValueSet {
					s.Value[i] = a.Value
				}
			}
		}
	}

	if n.access != nil {
		v := int(*n.access)
		s.Access = &v
	}
	if n.description != "" {
		s.Description = n.description
	}
	if len(n.tags) > 0 {
		s.Tags = n.tags
	}
	if n.critical != nil {
		s.Critical = n.critical
	}

	return s
}
