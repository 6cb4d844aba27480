// Package naming resolves display names for journey tree nodes from the
// content store, with raw-path fallbacks and a per-scope name cache.
package naming

import (
	"context"
	"fmt"
	"strings"

	"github.com/wehubfusion/Hodos/pkg/content"
	"github.com/wehubfusion/Hodos/pkg/locale"
	"github.com/wehubfusion/Hodos/pkg/tree"
	"go.uber.org/zap"
)

// Mode selects the strategy used to name a node.
type Mode string

const (
	// ModeRaw names nodes from their raw path, falling back to the item name.
	ModeRaw Mode = "raw"
	// ModeName names nodes from the item name, falling back to the raw path.
	ModeName Mode = "name"
	// ModeDisplayName names nodes from the item display name, falling back to the raw path.
	ModeDisplayName Mode = "displayname"
)

// DefaultMode is used when no mode is configured.
const DefaultMode = ModeRaw

// ParseMode parses a mode name case-insensitively. "display-name" and
// "display_name" are accepted for ModeDisplayName. Empty input yields DefaultMode.
func ParseMode(s string) (Mode, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "", "_", "").Replace(normalized)
	switch Mode(normalized) {
	case "":
		return DefaultMode, nil
	case ModeRaw, ModeName, ModeDisplayName:
		return Mode(normalized), nil
	}
	return "", fmt.Errorf("naming: unknown mode %q", s)
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeRaw, ModeName, ModeDisplayName:
		return true
	}
	return false
}

// Resolver names nodes according to its Mode. Lookups use restricted access.
type Resolver struct {
	mode       Mode
	repo       content.Repository
	translator locale.Translator
	logger     *zap.Logger
}

// NewResolver creates a resolver. logger may be nil.
func NewResolver(mode Mode, repo content.Repository, translator locale.Translator, logger *zap.Logger) (*Resolver, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("naming: unknown mode %q", mode)
	}
	if repo == nil {
		return nil, fmt.Errorf("naming: repository is required")
	}
	if translator == nil {
		return nil, fmt.Errorf("naming: translator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{mode: mode, repo: repo, translator: translator, logger: logger}, nil
}

// Mode returns the configured mode.
func (r *Resolver) Mode() Mode {
	return r.mode
}

// RawName names n from its raw path only.
func (r *Resolver) RawName(n *tree.Node) string {
	return RawName(n.Name, r.translator)
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Name string
	// ItemMissing is set when a lookup found no visible item. Such names must
	// not be cached: the item may appear later, and a wildcard record can
	// resolve differently under another raw name.
	ItemMissing bool
}

// Cacheable reports whether the name may be memoized.
func (res Resolution) Cacheable() bool {
	return !res.ItemMissing
}

// ItemName names n from its content item. Missing items fall back to RawName;
// wildcard items are named after the last segment of the raw path.
func (r *Resolver) ItemName(ctx context.Context, n *tree.Node) (string, error) {
	res, err := r.itemName(ctx, n)
	return res.Name, err
}

func (r *Resolver) itemName(ctx context.Context, n *tree.Node) (Resolution, error) {
	item, err := content.Lookup(ctx, r.repo, n.RecordID, content.AccessRestricted)
	if err != nil {
		return Resolution{}, err
	}
	if item == nil {
		return Resolution{Name: r.RawName(n), ItemMissing: true}, nil
	}
	if !item.IsWildcard() {
		return Resolution{Name: item.Name}, nil
	}
	return Resolution{Name: LastSegment(n.Name)}, nil
}

// Resolve names n using the configured mode. The name is never empty unless
// the raw name itself is: when every strategy yields nothing, the raw name is
// returned verbatim.
func (r *Resolver) Resolve(ctx context.Context, n *tree.Node) (Resolution, error) {
	var (
		res Resolution
		err error
	)

	switch r.mode {
	case ModeRaw:
		res.Name = r.RawName(n)
		if res.Name == "" {
			res, err = r.itemName(ctx, n)
		}
	case ModeName:
		res, err = r.itemName(ctx, n)
	case ModeDisplayName:
		res, err = r.displayName(ctx, n)
	}
	if err != nil {
		r.logger.Error("Failed to resolve node name",
			zap.String("node_id", n.ID),
			zap.String("record_id", n.RecordID.String()),
			zap.String("mode", string(r.mode)),
			zap.Error(err))
		return Resolution{}, err
	}

	if res.Name == "" {
		res.Name = n.Name
	}
	return res, nil
}

func (r *Resolver) displayName(ctx context.Context, n *tree.Node) (Resolution, error) {
	item, err := content.Lookup(ctx, r.repo, n.RecordID, content.AccessRestricted)
	if err != nil {
		return Resolution{}, err
	}
	if item == nil {
		return Resolution{Name: r.RawName(n), ItemMissing: true}, nil
	}
	return Resolution{Name: item.DisplayName}, nil
}
