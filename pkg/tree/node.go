// Package tree models the visitor-journey tree produced by the analytics
// engine. Nodes are read-only to the projection layer.
package tree

import (
	"fmt"
	"time"

	"github.com/wehubfusion/Hodos/pkg/content"
)

// Variant discriminates the metric payload carried by a Node.
type Variant string

const (
	// VariantBase nodes carry only the shared traffic metrics.
	VariantBase Variant = "base"
	// VariantPage nodes add page timing.
	VariantPage Variant = "page"
	// VariantExperience nodes add outcome and monetary metrics. They summarize
	// page traffic and may also carry page timing.
	VariantExperience Variant = "experience"
)

// Valid reports whether v is a known variant. The empty variant is treated as base.
func (v Variant) Valid() bool {
	switch v {
	case "", VariantBase, VariantPage, VariantExperience:
		return true
	}
	return false
}

// String returns the variant name, "base" for the empty variant.
func (v Variant) String() string {
	if v == "" {
		return string(VariantBase)
	}
	return string(v)
}

// PageMetrics is the payload of page nodes.
type PageMetrics struct {
	AverageDuration time.Duration `json:"averageDuration"`
}

// ExperienceMetrics is the payload of experience nodes.
type ExperienceMetrics struct {
	OutcomeCount         int64   `json:"outcomeCount"`
	MonetaryValue        float64 `json:"monetaryValue"`
	AverageMonetaryValue float64 `json:"averageMonetaryValue"`
}

// Metrics are the traffic figures shared by every variant.
type Metrics struct {
	PruneCount         int64   `json:"pruneCount"`
	SubtreeValue       float64 `json:"subtreeValue"`
	SubtreeCount       int64   `json:"subtreeCount"`
	PruneValue         float64 `json:"pruneValue"`
	ExitCount          int64   `json:"exitCount"`
	ExitValue          float64 `json:"exitValue"`
	ExitValuePotential float64 `json:"exitValuePotential"`
}

// Node is one aggregated point in visitor journeys.
type Node struct {
	ID       string           `json:"id"`
	RecordID content.RecordID `json:"recordId"`
	// Name is the raw path-like identifier, possibly with a "?query" fragment.
	Name            string  `json:"name"`
	Depth           int     `json:"depth"`
	Children        []*Node `json:"children,omitempty"`
	IsGroupedNode   bool    `json:"isGroupedNode,omitempty"`
	MergedNodeCount int     `json:"mergedNodeCount,omitempty"`

	Metrics

	Variant    Variant            `json:"variant,omitempty"`
	Page       *PageMetrics       `json:"page,omitempty"`
	Experience *ExperienceMetrics `json:"experience,omitempty"`
}

// IsRoot reports whether n is the synthetic entry node of the tree.
func (n *Node) IsRoot() bool {
	return n.Depth == 0 && n.RecordID.IsNil()
}

// IsGroup reports whether n stands for more than one coalesced node.
func (n *Node) IsGroup() bool {
	return n.IsGroupedNode && n.MergedNodeCount > 1
}

// AsPage returns the page payload when n is a page or an experience node
// carrying page timing.
func (n *Node) AsPage() (*PageMetrics, bool) {
	switch n.Variant {
	case VariantPage, VariantExperience:
		return n.Page, n.Page != nil
	}
	return nil, false
}

// AsExperience returns the experience payload when n is an experience node.
func (n *Node) AsExperience() (*ExperienceMetrics, bool) {
	if n.Variant == VariantExperience && n.Experience != nil {
		return n.Experience, true
	}
	return nil, false
}

// Validate checks the discriminant against the payloads for n and its subtree.
func (n *Node) Validate() error {
	return Walk(n, func(node *Node) error {
		if !node.Variant.Valid() {
			return fmt.Errorf("node %q: unknown variant %q", node.ID, node.Variant)
		}
		switch node.Variant {
		case VariantPage:
			if node.Page == nil {
				return fmt.Errorf("node %q: page variant without page metrics", node.ID)
			}
			if node.Experience != nil {
				return fmt.Errorf("node %q: page variant carries experience metrics", node.ID)
			}
		case VariantExperience:
			if node.Experience == nil {
				return fmt.Errorf("node %q: experience variant without experience metrics", node.ID)
			}
		default:
			if node.Page != nil || node.Experience != nil {
				return fmt.Errorf("node %q: base variant carries a payload", node.ID)
			}
		}
		if node.MergedNodeCount < 0 {
			return fmt.Errorf("node %q: negative merged node count", node.ID)
		}
		for _, child := range node.Children {
			if child == nil {
				return fmt.Errorf("node %q: nil child", node.ID)
			}
			if child.Depth <= node.Depth {
				return fmt.Errorf("node %q: child %q depth %d not below %d", node.ID, child.ID, child.Depth, node.Depth)
			}
		}
		return nil
	})
}
