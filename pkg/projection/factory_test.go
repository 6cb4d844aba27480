package projection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wehubfusion/Hodos/pkg/content"
	sdkerrors "github.com/wehubfusion/Hodos/pkg/errors"
	"github.com/wehubfusion/Hodos/pkg/links"
	"github.com/wehubfusion/Hodos/pkg/naming"
	"github.com/wehubfusion/Hodos/pkg/tree"
)

var (
	widgetID   = content.MustParseRecordID("0c2d7f1e-8b3a-4e5f-a6b7-c8d9e0f1a201")
	categoryID = content.MustParseRecordID("0c2d7f1e-8b3a-4e5f-a6b7-c8d9e0f1a202")
	hiddenID   = content.MustParseRecordID("0c2d7f1e-8b3a-4e5f-a6b7-c8d9e0f1a203")
	absentID   = content.MustParseRecordID("0c2d7f1e-8b3a-4e5f-a6b7-c8d9e0f1a204")
)

type stubTranslator struct{}

func (stubTranslator) Translate(key string, args ...any) string {
	if len(args) == 0 {
		return "[" + key + "]"
	}
	return fmt.Sprintf("[%s %v]", key, args)
}

// recordingRepository counts lookups per access mode.
type recordingRepository struct {
	inner content.Repository
	err   error

	mu    sync.Mutex
	calls map[content.Access]int
}

func newRecordingRepository() *recordingRepository {
	return &recordingRepository{
		inner: content.NewMemoryRepository(
			&content.Item{ID: widgetID, Name: "widget-item", DisplayName: "Widget", TemplateName: "Product", ContentPath: "/sitecore/content/home/products/widget"},
			&content.Item{ID: categoryID, Name: "*", DisplayName: "Category", TemplateName: "Category", ContentPath: "/sitecore/content/home/category/*"},
			&content.Item{ID: hiddenID, Name: "hidden", DisplayName: "Hidden Page", TemplateName: "Landing", ContentPath: "/sitecore/content/home/hidden", Restricted: true},
		),
		calls: make(map[content.Access]int),
	}
}

func (r *recordingRepository) GetItem(ctx context.Context, id content.RecordID, access content.Access) (*content.Item, error) {
	r.mu.Lock()
	r.calls[access]++
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.inner.GetItem(ctx, id, access)
}

func (r *recordingRepository) count(access content.Access) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[access]
}

// failingLinks always fails.
type failingLinks struct{ err error }

func (f failingLinks) URL(context.Context, *content.Item, links.Options) (string, error) {
	return "", f.err
}

func newTestFactory(t *testing.T, mode naming.Mode, repo content.Repository) *Factory {
	t.Helper()
	resolver, err := links.NewPathResolver("https://shop.example.com", "/sitecore/content/home")
	require.NoError(t, err)
	f, err := NewFactory(Config{Mode: mode}, repo, stubTranslator{}, resolver, nil, nil)
	require.NoError(t, err)
	return f
}

func rootNode(children ...*tree.Node) *tree.Node {
	return &tree.Node{ID: "root", Name: "", Depth: 0, Children: children}
}

func TestNewFactory(t *testing.T) {
	repo := newRecordingRepository()
	resolver, err := links.NewPathResolver("", "")
	require.NoError(t, err)

	f, err := NewFactory(Config{}, repo, stubTranslator{}, resolver, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, f.Cache())

	shared := naming.NewCache()
	f, err = NewFactory(Config{Mode: naming.ModeName}, repo, stubTranslator{}, resolver, shared, nil)
	require.NoError(t, err)
	assert.Same(t, shared, f.Cache())

	_, err = NewFactory(Config{Mode: "title"}, repo, stubTranslator{}, resolver, nil, nil)
	assert.Error(t, err)

	_, err = NewFactory(Config{}, repo, stubTranslator{}, nil, nil, nil)
	assert.Error(t, err)

	_, err = NewFactory(Config{}, nil, stubTranslator{}, resolver, nil, nil)
	assert.Error(t, err)
}

func TestResolveName_RootIsInternetInEveryMode(t *testing.T) {
	for _, mode := range []naming.Mode{naming.ModeRaw, naming.ModeName, naming.ModeDisplayName} {
		t.Run(string(mode), func(t *testing.T) {
			repo := newRecordingRepository()
			f := newTestFactory(t, mode, repo)

			got, err := f.ResolveName(context.Background(), rootNode())
			require.NoError(t, err)
			assert.Equal(t, "[Internet]", got)
			assert.Zero(t, repo.count(content.AccessRestricted))
			assert.Zero(t, f.Cache().Len())
		})
	}
}

func TestResolveName_Modes(t *testing.T) {
	tests := []struct {
		name string
		mode naming.Mode
		node *tree.Node
		want string
	}{
		{"raw strips query", naming.ModeRaw, &tree.Node{Name: "/products/widget?ref=1", Depth: 1}, "widget"},
		{"raw home", naming.ModeRaw, &tree.Node{Name: "/", Depth: 1}, "[Home]"},
		{"raw trailing slash uses item", naming.ModeRaw, &tree.Node{RecordID: widgetID, Name: "/products/", Depth: 1}, "widget-item"},
		{"name", naming.ModeName, &tree.Node{RecordID: widgetID, Name: "/products/widget", Depth: 1}, "widget-item"},
		{"name wildcard", naming.ModeName, &tree.Node{RecordID: categoryID, Name: "/category/shoes", Depth: 2}, "shoes"},
		{"display name", naming.ModeDisplayName, &tree.Node{RecordID: widgetID, Name: "/products/widget", Depth: 1}, "Widget"},
		{"display name missing item", naming.ModeDisplayName, &tree.Node{RecordID: absentID, Name: "/products/gadget.aspx", Depth: 1}, "gadget"},
		{"display name restricted item", naming.ModeDisplayName, &tree.Node{RecordID: hiddenID, Name: "/hidden", Depth: 1}, "hidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFactory(t, tt.mode, newRecordingRepository())
			got, err := f.ResolveName(context.Background(), tt.node)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveName_Cache(t *testing.T) {
	ctx := context.Background()

	t.Run("second call is served from cache", func(t *testing.T) {
		repo := newRecordingRepository()
		f := newTestFactory(t, naming.ModeDisplayName, repo)
		n := &tree.Node{RecordID: widgetID, Name: "/products/widget", Depth: 1}

		first, err := f.ResolveName(ctx, n)
		require.NoError(t, err)
		second, err := f.ResolveName(ctx, n)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, repo.count(content.AccessRestricted))
		assert.Equal(t, 1, f.Cache().Len())
	})

	t.Run("nil record id is never cached", func(t *testing.T) {
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
		a := &tree.Node{Name: "/a", Depth: 1}
		b := &tree.Node{Name: "/b", Depth: 1}

		got, err := f.ResolveName(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, "a", got)
		got, err = f.ResolveName(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, "b", got)
		assert.Zero(t, f.Cache().Len())
	})

	t.Run("same record different raw names are independent", func(t *testing.T) {
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
		shoes := &tree.Node{RecordID: categoryID, Name: "/category/shoes", Depth: 2}
		hats := &tree.Node{RecordID: categoryID, Name: "/category/hats", Depth: 2}

		got, err := f.ResolveName(ctx, shoes)
		require.NoError(t, err)
		assert.Equal(t, "shoes", got)
		got, err = f.ResolveName(ctx, hats)
		require.NoError(t, err)
		assert.Equal(t, "hats", got)
		assert.Equal(t, 2, f.Cache().Len())
	})

	t.Run("missing item is not cached", func(t *testing.T) {
		repo := newRecordingRepository()
		f := newTestFactory(t, naming.ModeDisplayName, repo)
		n := &tree.Node{RecordID: absentID, Name: "/products/gadget", Depth: 1}

		for i := 0; i < 2; i++ {
			got, err := f.ResolveName(ctx, n)
			require.NoError(t, err)
			assert.Equal(t, "gadget", got)
		}
		assert.Equal(t, 2, repo.count(content.AccessRestricted))
		assert.Zero(t, f.Cache().Len())
	})

	t.Run("group suffix is not cached", func(t *testing.T) {
		f := newTestFactory(t, naming.ModeDisplayName, newRecordingRepository())
		grouped := &tree.Node{RecordID: widgetID, Name: "/products/widget", Depth: 1, IsGroupedNode: true, MergedNodeCount: 3}
		single := &tree.Node{RecordID: widgetID, Name: "/products/widget", Depth: 1}

		got, err := f.ResolveName(ctx, grouped)
		require.NoError(t, err)
		assert.Equal(t, "Widget [MergedNodesSuffix [3]]", got)
		got, err = f.ResolveName(ctx, single)
		require.NoError(t, err)
		assert.Equal(t, "Widget", got)
	})
}

func TestResolveName_GroupSuffix(t *testing.T) {
	tests := []struct {
		name    string
		grouped bool
		count   int
		want    string
	}{
		{"five merged", true, 5, "checkout [MergedNodesSuffix [5]]"},
		{"one merged", true, 1, "checkout"},
		{"not grouped", false, 5, "checkout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
			n := &tree.Node{Name: "/cart/checkout", Depth: 3, IsGroupedNode: tt.grouped, MergedNodeCount: tt.count}
			got, err := f.ResolveName(context.Background(), n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveName_Errors(t *testing.T) {
	f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
	_, err := f.ResolveName(context.Background(), nil)
	assert.True(t, sdkerrors.IsNodeRequired(err))

	repo := newRecordingRepository()
	repo.err = errors.New("connection reset")
	f = newTestFactory(t, naming.ModeName, repo)
	_, err = f.ResolveName(context.Background(), &tree.Node{RecordID: widgetID, Name: "/products/widget", Depth: 1})
	assert.ErrorIs(t, err, repo.err)
	assert.Zero(t, f.Cache().Len())
}

func TestResolveItemName(t *testing.T) {
	f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
	item := &content.Item{Name: "widget-item", DisplayName: "Widget"}

	assert.Equal(t, "Widget", f.ResolveItemName(&tree.Node{Name: "/products/widget"}, item))
	assert.Equal(t, "/products/widget", f.ResolveItemName(&tree.Node{Name: "/products/widget"}, &content.Item{Name: "x"}))
	assert.Equal(t, "[Home]", f.ResolveItemName(&tree.Node{Name: "/?utm=1"}, nil))
	assert.Equal(t, "widget.aspx", f.ResolveItemName(&tree.Node{Name: "/products/widget.aspx?ref=1"}, nil))
	assert.Equal(t, "", f.ResolveItemName(&tree.Node{Name: ""}, nil))
}

func TestResolveURL(t *testing.T) {
	f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
	ctx := context.Background()
	n := &tree.Node{Name: "/Products/Widget?ref=1"}

	got, err := f.ResolveURL(ctx, n, nil, links.Options{})
	require.NoError(t, err)
	assert.Equal(t, n.Name, got)

	item := &content.Item{ContentPath: "/sitecore/content/home/products/widget"}
	got, err = f.ResolveURL(ctx, n, item, links.Options{})
	require.NoError(t, err)
	assert.Equal(t, "/products/widget", got)

	got, err = f.ResolveURL(ctx, n, item, links.Options{AlwaysIncludeServerURL: true})
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/products/widget", got)
}

func TestCreateMasterNode(t *testing.T) {
	ctx := context.Background()

	t.Run("root", func(t *testing.T) {
		child := &tree.Node{ID: "c1", Name: "/", Depth: 1}
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
		m, err := f.CreateMasterNode(ctx, rootNode(child))
		require.NoError(t, err)
		assert.Equal(t, "root", m.ID)
		assert.Equal(t, "[Internet]", m.Name)
		assert.Empty(t, m.URL)
		assert.Equal(t, []*tree.Node{child}, m.SubNodes)
	})

	t.Run("item backed", func(t *testing.T) {
		child := &tree.Node{ID: "c2", Name: "/reviews", Depth: 2}
		n := &tree.Node{ID: "w", RecordID: widgetID, Name: "/products/widget", Depth: 1, Children: []*tree.Node{child}}
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())

		m, err := f.CreateMasterNode(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, &MasterNode{
			ID:           "w",
			Name:         "Widget",
			RecordID:     widgetID,
			TemplateName: "Product",
			URL:          "/products/widget",
			ContentPath:  "/sitecore/content/home/products/widget",
			SubNodes:     []*tree.Node{child},
		}, m)
	})

	t.Run("restricted item is visible", func(t *testing.T) {
		repo := newRecordingRepository()
		f := newTestFactory(t, naming.ModeRaw, repo)
		n := &tree.Node{ID: "h", RecordID: hiddenID, Name: "/hidden", Depth: 1}

		m, err := f.CreateMasterNode(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, "Hidden Page", m.Name)
		assert.Equal(t, "Landing", m.TemplateName)
		assert.Equal(t, 1, repo.count(content.AccessElevated))
		assert.Zero(t, repo.count(content.AccessRestricted))
	})

	t.Run("missing item", func(t *testing.T) {
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
		n := &tree.Node{ID: "g", RecordID: absentID, Name: "/products/gadget?x=1", Depth: 1}

		m, err := f.CreateMasterNode(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, "gadget", m.Name)
		assert.Equal(t, n.Name, m.URL)
		assert.Empty(t, m.TemplateName)
		assert.Empty(t, m.ContentPath)
	})

	t.Run("link failure", func(t *testing.T) {
		linkErr := errors.New("no site for item")
		f, err := NewFactory(Config{}, newRecordingRepository(), stubTranslator{}, failingLinks{err: linkErr}, nil, nil)
		require.NoError(t, err)
		_, err = f.CreateMasterNode(ctx, &tree.Node{RecordID: widgetID, Name: "/products/widget", Depth: 1})
		assert.ErrorIs(t, err, linkErr)
	})

	t.Run("nil node", func(t *testing.T) {
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
		_, err := f.CreateMasterNode(ctx, nil)
		assert.True(t, sdkerrors.IsNodeRequired(err))
	})
}

func experienceNode(id, name string, depth int, page *tree.PageMetrics, children ...*tree.Node) *tree.Node {
	return &tree.Node{
		ID:         id,
		Name:       name,
		Depth:      depth,
		Children:   children,
		Metrics:    tree.Metrics{SubtreeCount: 10, ExitCount: 2},
		Variant:    tree.VariantExperience,
		Experience: &tree.ExperienceMetrics{OutcomeCount: 4, MonetaryValue: 120, AverageMonetaryValue: 30},
		Page:       page,
	}
}

func TestCreateNodeViewModel(t *testing.T) {
	ctx := context.Background()

	t.Run("variant mismatch", func(t *testing.T) {
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
		for _, n := range []*tree.Node{
			{ID: "p", Name: "/p", Depth: 1, Variant: tree.VariantPage, Page: &tree.PageMetrics{}},
			{ID: "b", Name: "/b", Depth: 1},
		} {
			_, err := f.CreateNodeViewModel(ctx, n, false)
			assert.True(t, sdkerrors.IsVariantMismatch(err), n.ID)
			assert.Equal(t, sdkerrors.CodeVariantMismatch, sdkerrors.Code(err))
		}
	})

	t.Run("duration from page timing", func(t *testing.T) {
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
		vm, err := f.CreateNodeViewModel(ctx, experienceNode("e", "/checkout", 1, &tree.PageMetrics{AverageDuration: 42 * time.Second}), false)
		require.NoError(t, err)
		assert.Equal(t, 42*time.Second, vm.Duration)

		vm, err = f.CreateNodeViewModel(ctx, experienceNode("e", "/checkout", 1, nil), false)
		require.NoError(t, err)
		assert.Zero(t, vm.Duration)
	})

	t.Run("fields", func(t *testing.T) {
		f := newTestFactory(t, naming.ModeDisplayName, newRecordingRepository())
		n := experienceNode("e", "/products/widget", 1, nil)
		n.RecordID = widgetID

		vm, err := f.CreateNodeViewModel(ctx, n, false)
		require.NoError(t, err)
		assert.Equal(t, "e", vm.ID)
		assert.Equal(t, widgetID, vm.RecordID)
		assert.Equal(t, "Widget", vm.Name)
		assert.Equal(t, n.Metrics, vm.Metrics)
		assert.Equal(t, int64(4), vm.OutcomeCount)
		assert.Equal(t, 120.0, vm.MonetaryValue)
		assert.Equal(t, 30.0, vm.AverageMonetaryValue)
		assert.Nil(t, vm.Children)
	})

	t.Run("children", func(t *testing.T) {
		grandchild := experienceNode("gc", "/thanks", 3, nil)
		child := experienceNode("c", "/pay", 2, nil, grandchild)
		n := experienceNode("e", "/cart", 1, nil, child)
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())

		vm, err := f.CreateNodeViewModel(ctx, n, false)
		require.NoError(t, err)
		assert.Empty(t, vm.Children)

		vm, err = f.CreateNodeViewModel(ctx, n, true)
		require.NoError(t, err)
		require.Len(t, vm.Children, 1)
		assert.Equal(t, "pay", vm.Children[0].Name)
		require.Len(t, vm.Children[0].Children, 1)
		assert.Equal(t, "thanks", vm.Children[0].Children[0].Name)
	})

	t.Run("non experience child fails", func(t *testing.T) {
		child := &tree.Node{ID: "b", Name: "/b", Depth: 2}
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
		_, err := f.CreateNodeViewModel(ctx, experienceNode("e", "/cart", 1, nil, child), true)
		assert.True(t, sdkerrors.IsVariantMismatch(err))
	})

	t.Run("nil node", func(t *testing.T) {
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
		_, err := f.CreateNodeViewModel(ctx, nil, true)
		assert.True(t, sdkerrors.IsNodeRequired(err))
	})
}

func pageNode(id, name string, depth int, d time.Duration, children ...*tree.Node) *tree.Node {
	return &tree.Node{
		ID:       id,
		Name:     name,
		Depth:    depth,
		Children: children,
		Metrics:  tree.Metrics{PruneCount: 1, SubtreeCount: 7},
		Variant:  tree.VariantPage,
		Page:     &tree.PageMetrics{AverageDuration: d},
	}
}

func TestCreateExplorerNode(t *testing.T) {
	ctx := context.Background()

	t.Run("tree", func(t *testing.T) {
		leaf := pageNode("l", "/products/widget", 2, 5*time.Second)
		leaf.RecordID = widgetID
		top := pageNode("t", "/products", 1, 3*time.Second, leaf)
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())

		e, err := f.CreateExplorerNode(ctx, top)
		require.NoError(t, err)
		assert.Equal(t, "t", e.ID)
		assert.Equal(t, "products", e.Name)
		assert.Equal(t, "/products", e.URL)
		assert.Equal(t, 3*time.Second, e.TimeSpent)
		assert.Equal(t, top.Metrics, e.Metrics)
		require.Len(t, e.Children, 1)

		child := e.Children[0]
		assert.Equal(t, "Widget", child.Name)
		assert.Equal(t, "/products/widget", child.URL)
		assert.Equal(t, widgetID, child.ItemID)
		assert.Equal(t, 5*time.Second, child.TimeSpent)
		assert.NotNil(t, child.Children)
		assert.Empty(t, child.Children)
	})

	t.Run("root page", func(t *testing.T) {
		root := pageNode("root", "", 0, time.Second, pageNode("h", "/", 1, 0))
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())

		e, err := f.CreateExplorerNode(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, "[Internet]", e.Name)
		require.Len(t, e.Children, 1)
		assert.Equal(t, "[Home]", e.Children[0].Name)
	})

	t.Run("experience node", func(t *testing.T) {
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
		e, err := f.CreateExplorerNode(ctx, experienceNode("e", "/cart", 1, &tree.PageMetrics{AverageDuration: time.Minute}))
		require.NoError(t, err)
		assert.Equal(t, time.Minute, e.TimeSpent)
	})

	t.Run("experience node without page timing", func(t *testing.T) {
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
		e, err := f.CreateExplorerNode(ctx, experienceNode("e", "/cart", 1, nil))
		assert.Nil(t, e)
		assert.True(t, sdkerrors.IsVariantMismatch(err))

		parent := pageNode("p", "/basket", 1, time.Second, experienceNode("c", "/cart", 2, nil))
		_, err = f.CreateExplorerNode(ctx, parent)
		assert.True(t, sdkerrors.IsVariantMismatch(err))
	})

	t.Run("base node", func(t *testing.T) {
		f := newTestFactory(t, naming.ModeRaw, newRecordingRepository())
		_, err := f.CreateExplorerNode(ctx, pageNode("t", "/products", 1, 0, &tree.Node{ID: "b", Name: "/b", Depth: 2}))
		assert.True(t, sdkerrors.IsVariantMismatch(err))
	})

	t.Run("repository failure", func(t *testing.T) {
		repo := newRecordingRepository()
		repo.err = errors.New("timeout")
		f := newTestFactory(t, naming.ModeRaw, repo)
		n := pageNode("t", "/products", 1, 0)
		n.RecordID = widgetID
		_, err := f.CreateExplorerNode(ctx, n)
		assert.ErrorIs(t, err, repo.err)
	})
}
