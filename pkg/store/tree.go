// Package store owns the global hierarchical key/value tree: path
// resolution, create-on-write, and recursive remove.
package store

import (
	"sync"

	"github.com/firscity/zephyr-xenlib/pkg/base"
)

// Node is one tree node: a path segment name, an optional value, and an
// ordered set of uniquely-named children.
type Node struct {
	Name     string
	Value    []byte
	HasValue bool
	Children []*Node
}

func newNode(name string) *Node {
	return &Node{Name: name}
}

func (n *Node) childNamed(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (n *Node) removeChildNamed(name string) bool {
	for i, c := range n.Children {
		if c.Name == name {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return true
		}
	}
	return false
}

// Tree is the process-wide hierarchical store, mutated only under its own
// mutex.
type Tree struct {
	mu      sync.Mutex
	root    *Node
	version uint64 // bumped on every mutation; backs DIRECTORY_PART cookies
	log     *base.Logger
}

// NewTree builds an empty tree with just the root node.
func NewTree(log *base.Logger) *Tree {
	return &Tree{root: newNode(""), log: log}
}

// Lookup walks the tree from root, returning the node whose path fully
// matches, or ok=false. The root path ("/", zero segments) returns the
// root node.
func (t *Tree) Lookup(path string) (node *Node, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lookupLocked(path)
}

func (t *Tree) lookupLocked(path string) (*Node, bool) {
	segments := SplitPath(path)
	cur := t.root
	for _, seg := range segments {
		next := cur.childNamed(seg)
		if next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Write walks the tree, lazily creating missing intermediate nodes with no
// value, and sets the terminal node's value when hasValue is true and
// value is non-empty. A zero-length value leaves whatever value the
// terminal already had untouched -- it only ensures the node exists.
func (t *Tree) Write(path string, value []byte, hasValue bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	segments := SplitPath(path)
	cur := t.root
	var firstCreated *Node
	var firstCreatedParent *Node

	for _, seg := range segments {
		next := cur.childNamed(seg)
		if next == nil {
			next = newNode(seg)
			cur.Children = append(cur.Children, next)
			if firstCreated == nil {
				firstCreated = next
				firstCreatedParent = cur
			}
		}
		cur = next
	}

	if hasValue && len(value) > 0 {
		cur.Value = append([]byte(nil), value...)
		cur.HasValue = true
	}

	// No step of this walk can fail, so Write always returns nil and never
	// detaches anything. firstCreated and firstCreatedParent record the
	// first node this call created and its parent; nothing reads them.
	_ = firstCreatedParent
	t.version++
	return nil
}

// Remove looks up path and destroys it and its entire subtree. Removing
// the root is not permitted. ok is false if the path did not exist.
func (t *Tree) Remove(path string) (ok bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	segments := SplitPath(path)
	if len(segments) == 0 {
		return false, errRemoveRoot
	}

	cur := t.root
	for i, seg := range segments {
		next := cur.childNamed(seg)
		if next == nil {
			return false, nil
		}
		if i == len(segments)-1 {
			cur.removeChildNamed(seg)
			t.version++
			return true, nil
		}
		cur = next
	}
	return false, nil
}

// DirectoryNames returns the ordered names of node's children, or nil if
// node has none.
func DirectoryNames(node *Node) []string {
	if node == nil || len(node.Children) == 0 {
		return nil
	}
	names := make([]string, len(node.Children))
	for i, c := range node.Children {
		names[i] = c.Name
	}
	return names
}

// Version returns the tree's current mutation counter, used as the
// DIRECTORY_PART continuation cookie.
func (t *Tree) Version() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}
