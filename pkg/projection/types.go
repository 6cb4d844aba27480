package projection

import (
	"time"

	"github.com/wehubfusion/Hodos/pkg/content"
	"github.com/wehubfusion/Hodos/pkg/tree"
)

// MasterNode is the navigational view of a node. SubNodes are the direct
// children as they came from the tree, not projected.
type MasterNode struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	RecordID     content.RecordID `json:"recordId"`
	TemplateName string           `json:"templateName"`
	URL          string           `json:"url"`
	ContentPath  string           `json:"contentPath"`
	SubNodes     []*tree.Node     `json:"subNodes,omitempty"`
}

// NodeViewModel is the metrics-bearing view of an experience node.
type NodeViewModel struct {
	ID       string           `json:"id"`
	RecordID content.RecordID `json:"recordId"`
	Name     string           `json:"name"`

	tree.Metrics

	OutcomeCount         int64         `json:"outcomeCount"`
	MonetaryValue        float64       `json:"monetaryValue"`
	AverageMonetaryValue float64       `json:"averageMonetaryValue"`
	Duration             time.Duration `json:"duration"`

	Children []*NodeViewModel `json:"children,omitempty"`
}

// ExplorerNode is the flattened view of a page node used by the path explorer.
type ExplorerNode struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	URL    string           `json:"url"`
	ItemID content.RecordID `json:"itemId"`

	tree.Metrics

	TimeSpent time.Duration `json:"timeSpent"`

	Children []*ExplorerNode `json:"children"`
}
