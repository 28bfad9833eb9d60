package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"navtree/api/internal/cache"
	"navtree/api/internal/notify"
	"navtree/api/internal/ordering"
	"navtree/api/internal/search"
	"navtree/api/internal/snapshot"
	"navtree/api/internal/store"
	"navtree/api/internal/tree"
	"navtree/api/internal/validate"
)

type menuStore interface {
	List(ctx context.Context, filter store.Filter) ([]store.MenuItem, error)
	Get(ctx context.Context, tenantID string, id int64) (store.MenuItem, error)
	WithGroups(ctx context.Context, keys []store.GroupKey, fn func(store.Tx) error) error
	Search(ctx context.Context, tenantID, text string, limit, offset int) ([]store.MenuItem, int, error)
	Ping(ctx context.Context) error
}

type searchService interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexMenu(item store.MenuItem)
	DeleteMenus(ids []int64)
}

type snapshotExporter interface {
	Export(ctx context.Context, tenant string, forest []tree.Node) (snapshot.Result, error)
}

// Options wires the optional collaborators of a Service. Zero values disable
// the matching feature: no cache backend means every read recomputes, no
// search index means database search, no exporter means snapshots fail with
// 503.
type Options struct {
	Cache        cache.Cache
	CacheEnabled bool
	CacheTTL     time.Duration
	CacheKey     string
	Publisher    notify.Publisher
	Search       searchService
	Snapshots    snapshotExporter
	Logger       logrus.FieldLogger
	// Source tags published events so an instance can ignore its own.
	Source string
}

type Service struct {
	store     menuStore
	validator *validate.Validator
	trees     *treeCache
	publisher notify.Publisher
	search    searchService
	snapshots snapshotExporter
	log       logrus.FieldLogger
	source    string
}

func New(dataStore menuStore, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = notify.Nop{}
	}
	key := opts.CacheKey
	if key == "" {
		key = "menu_tree"
	}
	searchSvc := opts.Search
	if searchSvc == nil {
		searchSvc = search.NewService(nil, dataStore, logger)
	}
	return &Service{
		store:     dataStore,
		validator: validate.New(),
		trees: &treeCache{
			backend: opts.Cache,
			enabled: opts.CacheEnabled,
			ttl:     opts.CacheTTL,
			key:     key,
			log:     logger.WithField("component", "tree_cache"),
		},
		publisher: publisher,
		search:    searchSvc,
		snapshots: opts.Snapshots,
		log:       logger,
		source:    opts.Source,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GetTree returns the tenant's full forest, inactive items included.
func (s *Service) GetTree(ctx context.Context, tenant string) ([]tree.Node, error) {
	return s.trees.get(ctx, tenant, func(ctx context.Context) ([]tree.Node, error) {
		items, err := s.store.List(ctx, store.Filter{TenantID: tenant})
		if err != nil {
			return nil, err
		}
		return tree.Assemble(items), nil
	})
}

// GetNested returns the active forest. With a location it returns the active
// children of the active root whose route name matches, or an empty forest.
func (s *Service) GetNested(ctx context.Context, tenant, location string) ([]tree.Node, error) {
	forest, err := s.GetTree(ctx, tenant)
	if err != nil {
		return nil, err
	}
	active := tree.Active(forest)
	location = strings.TrimSpace(location)
	if location == "" {
		return active, nil
	}
	root, ok := tree.FindByRoute(active, location)
	if !ok {
		return []tree.Node{}, nil
	}
	return root.Children, nil
}

// Query gives direct access to the flat record set.
func (s *Service) Query(ctx context.Context, filter store.Filter) ([]store.MenuItem, error) {
	return s.store.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, tenant string, id int64) (store.MenuItem, error) {
	item, err := s.store.Get(ctx, tenant, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.MenuItem{}, notFound()
	}
	return item, err
}

// Availability reports which moves the item currently allows.
func (s *Service) Availability(ctx context.Context, tenant string, id int64) (ordering.Availability, error) {
	item, err := s.Get(ctx, tenant, id)
	if err != nil {
		return ordering.Availability{}, err
	}
	siblings, err := s.store.List(ctx, store.Filter{
		TenantID:  tenant,
		ParentID:  item.ParentID,
		RootOnly:  item.ParentID == nil,
		ExcludeID: item.ID,
	})
	if err != nil {
		return ordering.Availability{}, err
	}
	return ordering.CanMove(slotOf(item), slotsOf(siblings)), nil
}

// Depth counts the ancestors of an item, stopping early on corrupted links.
func (s *Service) Depth(ctx context.Context, tenant string, id int64) (int, error) {
	item, err := s.Get(ctx, tenant, id)
	if err != nil {
		return 0, err
	}
	items, err := s.store.List(ctx, store.Filter{TenantID: tenant})
	if err != nil {
		return 0, err
	}
	return tree.NewIndex(items).Depth(item), nil
}

// ParentOptions lists candidate parents for excludeID with indented labels.
// The item's own descendants are left out since choosing one would create a cycle.
func (s *Service) ParentOptions(ctx context.Context, tenant string, excludeID int64) ([]tree.Option, error) {
	items, err := s.store.List(ctx, store.Filter{TenantID: tenant})
	if err != nil {
		return nil, err
	}
	index := tree.NewIndex(items)
	options := index.ParentOptions(excludeID)
	if excludeID == 0 {
		return options, nil
	}
	out := options[:0]
	for _, option := range options {
		if !index.Descends(option.ID, excludeID) {
			out = append(out, option)
		}
	}
	return out, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}

// ExportSnapshot uploads the tenant's current forest.
func (s *Service) ExportSnapshot(ctx context.Context, tenant string) (snapshot.Result, error) {
	if s.snapshots == nil {
		return snapshot.Result{}, domainError(http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "Snapshot storage is not configured", nil)
	}
	forest, err := s.GetTree(ctx, tenant)
	if err != nil {
		return snapshot.Result{}, err
	}
	result, err := s.snapshots.Export(ctx, tenant, forest)
	if err != nil {
		return snapshot.Result{}, fmt.Errorf("export snapshot: %w", err)
	}
	s.log.WithFields(logrus.Fields{"tenant": tenant, "key": result.Key, "count": result.Count}).Info("menu snapshot exported")
	return result, nil
}

// HandleRefresh evicts the cached tree named by an event from another
// instance. Events published by this instance are ignored.
func (s *Service) HandleRefresh(ctx context.Context, event notify.Event) {
	if s.source != "" && event.Source == s.source {
		return
	}
	s.trees.invalidate(ctx, event.TenantID, "remote_"+event.Kind)
}

func slotOf(item store.MenuItem) ordering.Slot {
	return ordering.Slot{ID: item.ID, Order: item.Order}
}

func slotsOf(items []store.MenuItem) []ordering.Slot {
	out := make([]ordering.Slot, 0, len(items))
	for _, item := range items {
		out = append(out, slotOf(item))
	}
	return out
}

func ordersOf(items []store.MenuItem) []int {
	out := make([]int, 0, len(items))
	for _, item := range items {
		out = append(out, item.Order)
	}
	return out
}
