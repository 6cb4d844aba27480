package tree

import (
	"encoding/json"
	"fmt"
	"io"
)

// Decode reads one JSON-encoded tree from r and validates it.
func Decode(r io.Reader) (*Node, error) {
	var root Node
	dec := json.NewDecoder(r)
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("tree: decode: %w", err)
	}
	if err := root.Validate(); err != nil {
		return nil, fmt.Errorf("tree: %w", err)
	}
	return &root, nil
}

// Encode writes root to w as JSON.
func Encode(w io.Writer, root *Node) error {
	if err := json.NewEncoder(w).Encode(root); err != nil {
		return fmt.Errorf("tree: encode: %w", err)
	}
	return nil
}
