package testutil

import (
	"context"
	"testing"

	"navtree/api/internal/store"
)

// ItemOption customises a fixture item.
type ItemOption func(*store.MenuItem)

func WithParent(id int64) ItemOption {
	return func(m *store.MenuItem) {
		m.ParentID = &id
	}
}

func WithOrder(order int) ItemOption {
	return func(m *store.MenuItem) {
		m.Order = order
	}
}

func WithTenant(tenantID string) ItemOption {
	return func(m *store.MenuItem) {
		m.TenantID = tenantID
	}
}

func Inactive() ItemOption {
	return func(m *store.MenuItem) {
		m.IsActive = false
	}
}

func WithRoute(route string) ItemOption {
	return func(m *store.MenuItem) {
		m.RouteName = &route
	}
}

func NewItem(name string, opts ...ItemOption) store.MenuItem {
	item := store.MenuItem{
		Name:     name,
		Target:   store.TargetSelf,
		IsActive: true,
	}
	for _, opt := range opts {
		opt(&item)
	}
	return item
}

// Insert writes an item straight through the store, bypassing order
// resolution, so tests can build arbitrary (even inconsistent) groups.
func Insert(t *testing.T, s *store.MenuStore, name string, opts ...ItemOption) store.MenuItem {
	t.Helper()
	item := NewItem(name, opts...)
	err := s.WithGroups(context.Background(), []store.GroupKey{item.Group()}, func(tx store.Tx) error {
		return tx.Insert(context.Background(), &item)
	})
	if err != nil {
		t.Fatalf("insert fixture %q: %v", name, err)
	}
	return item
}
