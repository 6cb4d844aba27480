package tree

import "errors"

// SkipChildren may be returned by a WalkFunc to skip the node's subtree.
var SkipChildren = errors.New("skip children")

// WalkFunc is called for every node visited by Walk.
type WalkFunc func(n *Node) error

// Walk visits root and its descendants depth-first, parents before children.
// Nil nodes are skipped. The first error other than SkipChildren stops the walk.
func Walk(root *Node, fn WalkFunc) error {
	if root == nil {
		return nil
	}
	if err := fn(root); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	for _, child := range root.Children {
		if err := Walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of nodes in the tree rooted at root.
func Count(root *Node) int {
	n := 0
	_ = Walk(root, func(*Node) error {
		n++
		return nil
	})
	return n
}
