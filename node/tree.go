package node

import (
	"iter"
	"sort"
	"strings"
	"sync"
)

// Tree owns a Node hierarchy and serializes access to it behind a single
// reader-writer lock: mutators take the write lock, reads (HTTP GET,
// broadcast serialization) take the read lock. The Node graph itself holds
// plain, unsynchronized back-references — Tree is the only lock owner.
type Tree struct {
	mu   sync.RWMutex
	root *Node
}

// NewTree returns a Tree containing only the root container.
func NewTree() *Tree {
	return &Tree{root: newNode("", nil)}
}

func splitPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// Resolve walks path from the root, returning the target node, if present.
func (t *Tree) Resolve(path string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resolveLocked(path)
}

func (t *Tree) resolveLocked(path string) (*Node, bool) {
	cur := t.root
	for _, seg := range splitPath(path) {
		c, ok := cur.getChild(seg)
		if !ok {
			return nil, false
		}
		cur = c
	}
	return cur, true
}

// Serialize resolves path and returns its wire JSON form.
func (t *Tree) Serialize(path string) (*SerializedNode, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.resolveLocked(path)
	if !ok {
		return nil, false
	}
	return n.serialize(), true
}

// AddMethod materializes path (creating empty intermediate containers as
// needed) and applies opts to the target node. Returns the changed path for
// PATH_CHANGED notification.
func (t *Tree) AddMethod(path string, opts NodeOpts) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.root
	for _, seg := range splitPath(path) {
		cur = cur.getOrCreateChild(seg)
	}
	cur.setOpts(opts)
	return normalizePath(path)
}

// RemoveMethod clears the target node's attributes, then walks toward the
// root deleting any ancestor that becomes empty, stopping at the first
// non-empty ancestor. Returns the target path followed by every ancestor
// path that was pruned, in root-ward order, for PATH_CHANGED notification.
func (t *Tree) RemoveMethod(path string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.resolveLocked(path)
	if !ok {
		return nil
	}

	n.setOpts(NodeOpts{})
	changed := []string{normalizePath(path)}

	if n.parent != nil && n.isEmpty() {
		n.parent.removeChild(n.name)
	}

	// Walk toward the root, pruning any ancestor that became empty and
	// stopping at the first one that didn't.
	cur := n.parent
	for cur != nil && cur.parent != nil && cur.isEmpty() {
		parent := cur.parent
		prunedPath := cur.FullPath()
		parent.removeChild(cur.name)
		changed = append(changed, prunedPath)
		cur = parent
	}

	return changed
}

func normalizePath(path string) string {
	segs := splitPath(path)
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/")
}

// SetValue assigns the value slot at argument index i on the node at path.
func (t *Tree) SetValue(path string, i int, v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.resolveLocked(path)
	if !ok {
		return ErrUnknownPath
	}
	return n.setValue(i, v)
}

// UnsetValue clears the value slot at argument index i on the node at path.
func (t *Tree) UnsetValue(path string, i int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.resolveLocked(path)
	if !ok {
		return ErrUnknownPath
	}
	return n.unsetValue(i)
}

// MethodGenerator returns a lazy, pre-order sequence of every descendant
// method (a node carrying arguments) under the tree. Each call produces a
// fresh, independently-consumable sequence.
func (t *Tree) MethodGenerator() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		walkMethods(t.root, yield)
	}
}

func walkMethods(n *Node, yield func(*Node) bool) bool {
	if n.IsMethod() {
		if !yield(n) {
			return false
		}
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !walkMethods(n.children[name], yield) {
			return false
		}
	}
	return true
}
