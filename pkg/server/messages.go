package server

import (
	"fmt"
	"strings"

	"github.com/wehubfusion/Hodos/pkg/projection"
	"github.com/wehubfusion/Hodos/pkg/tree"
)

// Kind selects the projection a request asks for.
type Kind string

const (
	KindMaster   Kind = "master"
	KindView     Kind = "view"
	KindExplorer Kind = "explorer"
)

// ParseKind parses a kind name case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMaster, KindView, KindExplorer:
		return k, nil
	}
	return "", fmt.Errorf("unknown projection kind %q", s)
}

// Request is the body of a projection request.
type Request struct {
	Kind Kind `json:"kind"`
	// IncludeChildren applies to KindView only.
	IncludeChildren bool       `json:"includeChildren,omitempty"`
	Tree            *tree.Node `json:"tree"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response carries exactly one of the projections, or Error.
type Response struct {
	Master   *projection.MasterNode    `json:"master,omitempty"`
	View     *projection.NodeViewModel `json:"view,omitempty"`
	Explorer *projection.ExplorerNode  `json:"explorer,omitempty"`
	Error    *ErrorBody                `json:"error,omitempty"`
}
