// Package projection turns journey tree nodes into the view models rendered
// by the reporting UI.
package projection

import (
	"context"
	"fmt"
	"strings"

	"github.com/wehubfusion/Hodos/pkg/content"
	sdkerrors "github.com/wehubfusion/Hodos/pkg/errors"
	"github.com/wehubfusion/Hodos/pkg/links"
	"github.com/wehubfusion/Hodos/pkg/locale"
	"github.com/wehubfusion/Hodos/pkg/naming"
	"github.com/wehubfusion/Hodos/pkg/tree"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config holds the per-factory settings.
type Config struct {
	// Mode selects how ResolveName names nodes.
	Mode naming.Mode
	// LinkOptions are used for master node URLs.
	LinkOptions links.Options
}

// Factory builds view models for one projection scope. Its name cache lives
// as long as the factory; create one factory per report render.
type Factory struct {
	config     Config
	repo       content.Repository
	translator locale.Translator
	links      links.Resolver
	resolver   *naming.Resolver
	cache      *naming.Cache
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewFactory creates a factory. An empty Config.Mode selects
// naming.DefaultMode. A nil cache gives the factory its own; a nil logger
// disables logging.
func NewFactory(cfg Config, repo content.Repository, translator locale.Translator, linkResolver links.Resolver, cache *naming.Cache, logger *zap.Logger) (*Factory, error) {
	if cfg.Mode == "" {
		cfg.Mode = naming.DefaultMode
	}
	if linkResolver == nil {
		return nil, fmt.Errorf("projection: link resolver is required")
	}
	if cache == nil {
		cache = naming.NewCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	resolver, err := naming.NewResolver(cfg.Mode, repo, translator, logger)
	if err != nil {
		return nil, fmt.Errorf("projection: %w", err)
	}

	return &Factory{
		config:     cfg,
		repo:       repo,
		translator: translator,
		links:      linkResolver,
		resolver:   resolver,
		cache:      cache,
		logger:     logger,
		tracer:     otel.Tracer("hodos/projection"),
	}, nil
}

// Cache returns the factory's name cache.
func (f *Factory) Cache() *naming.Cache {
	return f.cache
}

// ResolveName returns the display name of n using the configured mode and the
// name cache. The root node is always the localized Internet label. Grouped
// nodes get a merged-count suffix.
func (f *Factory) ResolveName(ctx context.Context, n *tree.Node) (string, error) {
	if n == nil {
		return "", sdkerrors.NodeRequired("ResolveName")
	}
	if n.IsRoot() {
		return f.translator.Translate(locale.KeyInternet), nil
	}

	name, ok := f.cache.Get(ctx, n.RecordID, n.Name)
	if ok {
		f.logger.Debug("Node name cache hit",
			zap.String("node_id", n.ID),
			zap.String("record_id", n.RecordID.String()))
	} else {
		res, err := f.resolver.Resolve(ctx, n)
		if err != nil {
			return "", err
		}
		name = res.Name
		if res.Cacheable() {
			f.cache.Put(n.RecordID, n.Name, name)
		}
	}

	if n.IsGroup() {
		name += " " + f.translator.Translate(locale.KeyMergedSuffix, n.MergedNodeCount)
	}
	return name, nil
}

// ResolveItemName names n from an already fetched item without touching the
// cache: the item's display name, or for a missing item the last URL segment
// of the raw name, with "/" mapped to Home.
func (f *Factory) ResolveItemName(n *tree.Node, item *content.Item) string {
	var name string
	switch {
	case item != nil:
		name = item.DisplayName
	case strings.EqualFold(naming.StripQuery(n.Name), "/"):
		name = f.translator.Translate(locale.KeyHome)
	default:
		name = naming.LastSegment(n.Name)
	}
	if name == "" {
		name = n.Name
	}
	return name
}

// ResolveURL returns the item URL, or the raw node name when there is no item.
func (f *Factory) ResolveURL(ctx context.Context, n *tree.Node, item *content.Item, opts links.Options) (string, error) {
	if item == nil {
		return n.Name, nil
	}
	return f.links.URL(ctx, item, opts)
}

// CreateMasterNode builds the navigational view of n. The item lookup bypasses
// item restrictions.
func (f *Factory) CreateMasterNode(ctx context.Context, n *tree.Node) (*MasterNode, error) {
	ctx, span := f.startSpan(ctx, "projection.CreateMasterNode", n)
	defer span.End()

	m, err := f.createMasterNode(ctx, n)
	return m, endSpan(span, err)
}

func (f *Factory) createMasterNode(ctx context.Context, n *tree.Node) (*MasterNode, error) {
	if n == nil {
		return nil, sdkerrors.NodeRequired("CreateMasterNode")
	}

	item, err := content.Lookup(ctx, f.repo, n.RecordID, content.AccessElevated)
	if err != nil {
		return nil, err
	}

	if n.IsRoot() {
		return &MasterNode{
			ID:       n.ID,
			Name:     f.translator.Translate(locale.KeyInternet),
			SubNodes: n.Children,
		}, nil
	}

	url, err := f.ResolveURL(ctx, n, item, f.config.LinkOptions)
	if err != nil {
		return nil, err
	}

	m := &MasterNode{
		ID:       n.ID,
		Name:     f.ResolveItemName(n, item),
		RecordID: n.RecordID,
		URL:      url,
		SubNodes: n.Children,
	}
	if item != nil {
		m.TemplateName = item.TemplateName
		m.ContentPath = item.ContentPath
	}
	return m, nil
}

// CreateNodeViewModel builds the metrics view of an experience node. When
// includeChildren is false the top-level view has no children; descendants
// below a projected child are always included.
func (f *Factory) CreateNodeViewModel(ctx context.Context, n *tree.Node, includeChildren bool) (*NodeViewModel, error) {
	ctx, span := f.startSpan(ctx, "projection.CreateNodeViewModel", n)
	defer span.End()
	span.SetAttributes(attribute.Bool("hodos.include_children", includeChildren))

	vm, err := f.createNodeViewModel(ctx, n, includeChildren)
	return vm, endSpan(span, err)
}

func (f *Factory) createNodeViewModel(ctx context.Context, n *tree.Node, includeChildren bool) (*NodeViewModel, error) {
	if n == nil {
		return nil, sdkerrors.NodeRequired("CreateNodeViewModel")
	}
	experience, ok := n.AsExperience()
	if !ok {
		return nil, sdkerrors.VariantMismatch("CreateNodeViewModel", n.ID,
			tree.VariantExperience.String(), n.Variant.String())
	}

	name, err := f.ResolveName(ctx, n)
	if err != nil {
		return nil, err
	}

	vm := &NodeViewModel{
		ID:                   n.ID,
		RecordID:             n.RecordID,
		Name:                 name,
		Metrics:              n.Metrics,
		OutcomeCount:         experience.OutcomeCount,
		MonetaryValue:        experience.MonetaryValue,
		AverageMonetaryValue: experience.AverageMonetaryValue,
	}
	if page, ok := n.AsPage(); ok {
		vm.Duration = page.AverageDuration
	}

	if !includeChildren {
		return vm, nil
	}
	vm.Children = make([]*NodeViewModel, 0, len(n.Children))
	for _, child := range n.Children {
		childVM, err := f.createNodeViewModel(ctx, child, true)
		if err != nil {
			return nil, err
		}
		vm.Children = append(vm.Children, childVM)
	}
	return vm, nil
}

// CreateExplorerNode builds the explorer view of a page node and all of its
// descendants. Experience nodes qualify only when they carry page timing.
func (f *Factory) CreateExplorerNode(ctx context.Context, n *tree.Node) (*ExplorerNode, error) {
	ctx, span := f.startSpan(ctx, "projection.CreateExplorerNode", n)
	defer span.End()

	e, err := f.createExplorerNode(ctx, n)
	return e, endSpan(span, err)
}

func (f *Factory) createExplorerNode(ctx context.Context, n *tree.Node) (*ExplorerNode, error) {
	if n == nil {
		return nil, sdkerrors.NodeRequired("CreateExplorerNode")
	}
	page, ok := n.AsPage()
	if !ok {
		return nil, sdkerrors.VariantMismatch("CreateExplorerNode", n.ID,
			tree.VariantPage.String(), n.Variant.String())
	}

	master, err := f.createMasterNode(ctx, n)
	if err != nil {
		return nil, err
	}

	e := &ExplorerNode{
		ID:        master.ID,
		Name:      master.Name,
		URL:       master.URL,
		ItemID:    n.RecordID,
		Metrics:   n.Metrics,
		TimeSpent: page.AverageDuration,
		Children:  make([]*ExplorerNode, 0, len(master.SubNodes)),
	}
	for _, sub := range master.SubNodes {
		child, err := f.createExplorerNode(ctx, sub)
		if err != nil {
			return nil, err
		}
		e.Children = append(e.Children, child)
	}
	return e, nil
}

func (f *Factory) startSpan(ctx context.Context, name string, n *tree.Node) (context.Context, trace.Span) {
	ctx, span := f.tracer.Start(ctx, name)
	span.SetAttributes(attribute.String("hodos.naming_mode", string(f.config.Mode)))
	if n != nil {
		span.SetAttributes(
			attribute.String("hodos.node_id", n.ID),
			attribute.Int("hodos.node_depth", n.Depth),
		)
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
