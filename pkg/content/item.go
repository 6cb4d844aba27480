// Package content defines the content-item store consumed by the naming and
// projection engine, together with memory, Redis and Azure blob backends.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// WildcardName is the stored name of template items shared by many URL instances.
const WildcardName = "*"

// ErrItemNotFound is returned by a Repository when no visible item exists for an ID.
var ErrItemNotFound = errors.New("content: item not found")

// RecordID identifies an item in the content store. The zero value means
// "no backing item".
type RecordID uuid.UUID

// NilID is the empty RecordID.
var NilID RecordID

// ParseRecordID parses a UUID in any form accepted by uuid.Parse, including the
// braced form. An empty string yields NilID.
func ParseRecordID(s string) (RecordID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NilID, nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return NilID, fmt.Errorf("content: invalid record id %q: %w", s, err)
	}
	return RecordID(u), nil
}

// MustParseRecordID is like ParseRecordID but panics on error. Intended for tests and fixtures.
func MustParseRecordID(s string) RecordID {
	id, err := ParseRecordID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// NewRecordID returns a random RecordID.
func NewRecordID() RecordID {
	return RecordID(uuid.New())
}

// IsNil reports whether id is the empty RecordID.
func (id RecordID) IsNil() bool {
	return id == NilID
}

// String returns the canonical UUID form, or "" for NilID.
func (id RecordID) String() string {
	if id.IsNil() {
		return ""
	}
	return uuid.UUID(id).String()
}

// MarshalText implements encoding.TextMarshaler.
func (id RecordID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input decodes to NilID.
func (id *RecordID) UnmarshalText(b []byte) error {
	parsed, err := ParseRecordID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Item is a content item as seen by the naming engine.
type Item struct {
	ID           RecordID `json:"id"`
	Name         string   `json:"name"`
	DisplayName  string   `json:"displayName"`
	TemplateName string   `json:"templateName"`
	ContentPath  string   `json:"contentPath"`
	// Restricted items are only visible to elevated reads.
	Restricted bool `json:"restricted,omitempty"`
}

// IsWildcard reports whether the item is a template placeholder.
func (i *Item) IsWildcard() bool {
	return i != nil && i.Name == WildcardName
}

// Access selects the security mode of a repository read.
type Access int

const (
	// AccessRestricted honours item restrictions.
	AccessRestricted Access = iota
	// AccessElevated bypasses item restrictions.
	AccessElevated
)

// String returns the access mode name.
func (a Access) String() string {
	switch a {
	case AccessElevated:
		return "elevated"
	default:
		return "restricted"
	}
}

// Permits reports whether an item may be returned under this access mode.
func (a Access) Permits(item *Item) bool {
	if item == nil {
		return false
	}
	return a == AccessElevated || !item.Restricted
}

// Repository looks up content items by RecordID.
//
// GetItem returns ErrItemNotFound (possibly wrapped) when the item does not
// exist or is not visible under the requested access mode. Any other error is a
// collaborator failure.
type Repository interface {
	GetItem(ctx context.Context, id RecordID, access Access) (*Item, error)
}

// IsNotFound checks if an error reports a missing item
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}

// Lookup fetches an item and folds ErrItemNotFound into a nil item. A nil id
// never reaches the repository.
func Lookup(ctx context.Context, repo Repository, id RecordID, access Access) (*Item, error) {
	if id.IsNil() || repo == nil {
		return nil, nil
	}
	item, err := repo.GetItem(ctx, id, access)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}
