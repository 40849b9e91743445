// Package node models the OSCQuery method tree: a hierarchical, path
// addressed set of containers and methods, and its JSON wire serialization.
package node

import (
	"errors"
	"strings"

	"github.com/defektu/node-oscquery/osctype"
)

// Access is the read/write policy of a node.
type Access int

const (
	AccessNoValue   Access = 0
	AccessReadOnly  Access = 1
	AccessWriteOnly Access = 2
	AccessReadWrite Access = 3
)

// ClipMode is an argument's clipping policy against its Range.
type ClipMode string

const (
	ClipNone ClipMode = "none"
	ClipLow  ClipMode = "low"
	ClipHigh ClipMode = "high"
	ClipBoth ClipMode = "both"
)

// Range bounds an argument's value. For array-typed arguments, Nested holds
// one Range per element (any of which may be nil); Nested and
// Min/Max/Vals are mutually exclusive.
type Range struct {
	Min    *float64
	Max    *float64
	Vals   []any
	Nested []*Range
}

// ArgumentDescriptor describes one positional OSC argument of a method.
type ArgumentDescriptor struct {
	Type     osctype.OSCType
	Range    *Range
	ClipMode ClipMode
	Value    any
	ValueSet bool
}

// ErrInvalidIndex is returned by SetValue/UnsetValue when the argument index
// is out of range.
var ErrInvalidIndex = errors.New("node: invalid argument index")

// ErrUnknownPath is returned when resolving a path that has no node.
var ErrUnknownPath = errors.New("node: unknown path")

// Node is one element of the OSC address space. The zero value is not
// usable; construct nodes via a Tree.
type Node struct {
	name     string
	parent   *Node
	children map[string]*Node

	description string
	access      *Access
	tags        []string
	critical    *bool
	arguments   []*ArgumentDescriptor
}

func newNode(name string, parent *Node) *Node {
	return &Node{name: name, parent: parent, children: map[string]*Node{}}
}

// Name returns the node's path segment ("" at the root).
func (n *Node) Name() string { return n.name }

// Parent returns the node's parent, or nil at the root.
func (n *Node) Parent() *Node { return n.parent }

// IsMethod reports whether the node carries argument descriptors.
func (n *Node) IsMethod() bool { return len(n.arguments) > 0 }

// Arguments returns the node's argument descriptors, or nil for a container.
func (n *Node) Arguments() []*ArgumentDescriptor { return n.arguments }

// Access returns the node's declared access, and whether it was ever set.
func (n *Node) Access() (Access, bool) {
	if n.access == nil {
		return AccessNoValue, false
	}
	return *n.access, true
}

// FullPath reconstructs the node's address ("/a/b"; "/" at the root).
func (n *Node) FullPath() string {
	if n.parent == nil {
		return "/"
	}
	var segs []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		segs = append([]string{cur.name}, segs...)
	}
	return "/" + strings.Join(segs, "/")
}

// getOrCreateChild returns the existing child named seg, creating an empty
// container if it doesn't exist.
func (n *Node) getOrCreateChild(seg string) *Node {
	if c, ok := n.children[seg]; ok {
		return c
	}
	c := newNode(seg, n)
	n.children[seg] = c
	return c
}

func (n *Node) hasChild(seg string) bool {
	_, ok := n.children[seg]
	return ok
}

func (n *Node) getChild(seg string) (*Node, bool) {
	c, ok := n.children[seg]
	return c, ok
}

// removeChild detaches the named child. A missing child is a silent no-op.
func (n *Node) removeChild(seg string) {
	delete(n.children, seg)
}

// NodeOpts is the full set of declared attributes assignable via SetOpts.
// A zero-value NodeOpts clears the node to a pure, empty container.
type NodeOpts struct {
	Description string
	Access      *Access
	Tags        []string
	Critical    *bool
	Arguments   []*ArgumentDescriptor
}

// setOpts replaces the node's declared attribute set.
func (n *Node) setOpts(opts NodeOpts) {
	n.description = opts.Description
	n.access = opts.Access
	n.tags = opts.Tags
	n.critical = opts.Critical
	n.arguments = opts.Arguments
}

// setValue assigns the value slot at argument index i.
func (n *Node) setValue(i int, v any) error {
	if i < 0 || i >= len(n.arguments) {
		return ErrInvalidIndex
	}
	n.arguments[i].Value = v
	n.arguments[i].ValueSet = true
	return nil
}

// unsetValue clears the value slot at argument index i.
func (n *Node) unsetValue(i int) error {
	if i < 0 || i >= len(n.arguments) {
		return ErrInvalidIndex
	}
	n.arguments[i].Value = nil
	n.arguments[i].ValueSet = false
	return nil
}

// isEmpty reports whether n has no declared attributes, arguments, or
// children — the condition under which removeMethod prunes an ancestor.
func (n *Node) isEmpty() bool {
	if n.access != nil && *n.access != AccessNoValue {
		return false
	}
	if len(n.arguments) > 0 || len(n.children) > 0 {
		return false
	}
	if n.description != "" || len(n.tags) > 0 || n.critical != nil {
		return false
	}
	return true
}
