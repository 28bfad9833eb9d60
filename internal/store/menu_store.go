package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const menuColumns = `id, tenant_id, parent_id, name, url, route_name, target, icon,
		sort_order, is_active, is_external, created_at, updated_at`

// Tx is the view of the store available inside a sibling-group lock.
type Tx interface {
	Get(ctx context.Context, tenantID string, id int64) (MenuItem, error)
	Siblings(ctx context.Context, key GroupKey, excludeID int64) ([]MenuItem, error)
	SubtreeIDs(ctx context.Context, id int64) ([]int64, error)
	Insert(ctx context.Context, item *MenuItem) error
	Update(ctx context.Context, item *MenuItem) error
	SetOrder(ctx context.Context, id int64, order int) error
	Delete(ctx context.Context, id int64) error
}

// MenuStore persists menu items in PostgreSQL or SQLite.
type MenuStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewMenuStore(db *sqlx.DB) *MenuStore {
	return &MenuStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (s *MenuStore) DB() *sqlx.DB {
	return s.db
}

func (s *MenuStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MenuStore) List(ctx context.Context, filter Filter) ([]MenuItem, error) {
	return listItems(ctx, s.db, filter)
}

// ListAll returns every item of every tenant, ordered by tenant then group.
func (s *MenuStore) ListAll(ctx context.Context) ([]MenuItem, error) {
	query := `SELECT ` + menuColumns + ` FROM menu_items ORDER BY tenant_id, COALESCE(parent_id, 0), sort_order, id`
	items := make([]MenuItem, 0)
	if err := sqlx.SelectContext(ctx, s.db, &items, query); err != nil {
		return nil, fmt.Errorf("list all menu items: %w", err)
	}
	return items, nil
}

// Tenants returns the distinct tenant keys that own at least one item.
func (s *MenuStore) Tenants(ctx context.Context) ([]string, error) {
	tenants := make([]string, 0)
	if err := sqlx.SelectContext(ctx, s.db, &tenants, `SELECT DISTINCT tenant_id FROM menu_items ORDER BY tenant_id`); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

func (s *MenuStore) Get(ctx context.Context, tenantID string, id int64) (MenuItem, error) {
	return getItem(ctx, s.db, tenantID, id)
}

// Search is the SQL fallback used when no search index is reachable.
func (s *MenuStore) Search(ctx context.Context, tenantID, text string, limit, offset int) ([]MenuItem, int, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(text)) + "%"
	where := `tenant_id = ? AND (LOWER(name) LIKE ? OR LOWER(COALESCE(url, '')) LIKE ? OR LOWER(COALESCE(route_name, '')) LIKE ?)`
	args := []any{tenantID, pattern, pattern, pattern}

	var total int
	if err := sqlx.GetContext(ctx, s.db, &total, s.db.Rebind(`SELECT COUNT(*) FROM menu_items WHERE `+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count menu search: %w", err)
	}

	query := `SELECT ` + menuColumns + ` FROM menu_items WHERE ` + where + ` ORDER BY name, id LIMIT ? OFFSET ?`
	items := make([]MenuItem, 0)
	if err := sqlx.SelectContext(ctx, s.db, &items, s.db.Rebind(query), append(args, limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("search menu items: %w", err)
	}
	return items, total, nil
}

// WithGroups runs fn in a transaction that holds the lock of every listed
// sibling group. On PostgreSQL the locks are transaction-scoped advisory locks
// taken in a fixed order; SQLite transactions begin IMMEDIATE and are
// serialised by the database itself.
func (s *MenuStore) WithGroups(ctx context.Context, keys []GroupKey, fn func(Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin menu tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if s.db.DriverName() == DriverPostgres {
		for _, key := range lockOrder(keys) {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
				return fmt.Errorf("lock %s: %w", key, err)
			}
		}
	}

	if err := fn(&sqlTx{tx: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit menu tx: %w", err)
	}
	committed = true
	return nil
}

func lockOrder(keys []GroupKey) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		name := key.String()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type sqlTx struct {
	tx  *sqlx.Tx
	now func() time.Time
}

func (t *sqlTx) Get(ctx context.Context, tenantID string, id int64) (MenuItem, error) {
	return getItem(ctx, t.tx, tenantID, id)
}

func (t *sqlTx) Siblings(ctx context.Context, key GroupKey, excludeID int64) ([]MenuItem, error) {
	query := `SELECT ` + menuColumns + ` FROM menu_items WHERE tenant_id = ?`
	args := []any{key.TenantID}
	if key.ParentID == nil {
		query += ` AND parent_id IS NULL`
	} else {
		query += ` AND parent_id = ?`
		args = append(args, *key.ParentID)
	}
	query += ` AND id <> ? ORDER BY sort_order, id`
	args = append(args, excludeID)

	items := make([]MenuItem, 0)
	if err := sqlx.SelectContext(ctx, t.tx, &items, t.tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list siblings of %s: %w", key, err)
	}
	return items, nil
}

// SubtreeIDs returns id and every descendant of it. UNION (not UNION ALL)
// stops the recursion on corrupted, cyclic parent links.
func (t *sqlTx) SubtreeIDs(ctx context.Context, id int64) ([]int64, error) {
	const query = `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM menu_items WHERE id = ?
			UNION
			SELECT m.id FROM menu_items m JOIN subtree s ON m.parent_id = s.id
		)
		SELECT id FROM subtree`
	ids := make([]int64, 0)
	if err := sqlx.SelectContext(ctx, t.tx, &ids, t.tx.Rebind(query), id); err != nil {
		return nil, fmt.Errorf("load subtree of %d: %w", id, err)
	}
	return ids, nil
}

func (t *sqlTx) Insert(ctx context.Context, item *MenuItem) error {
	now := t.now()
	item.CreatedAt = now
	item.UpdatedAt = now
	query := `
		INSERT INTO menu_items (tenant_id, parent_id, name, url, route_name, target, icon,
			sort_order, is_active, is_external, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	err := t.tx.QueryRowxContext(ctx, t.tx.Rebind(query),
		item.TenantID,
		item.ParentID,
		item.Name,
		item.URL,
		item.RouteName,
		item.Target,
		item.Icon,
		item.Order,
		item.IsActive,
		item.IsExternal,
		item.CreatedAt,
		item.UpdatedAt,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("insert menu item: %w", err)
	}
	return nil
}

func (t *sqlTx) Update(ctx context.Context, item *MenuItem) error {
	item.UpdatedAt = t.now()
	query := `
		UPDATE menu_items
		SET parent_id = ?, name = ?, url = ?, route_name = ?, target = ?, icon = ?,
			sort_order = ?, is_active = ?, is_external = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`
	result, err := t.tx.ExecContext(ctx, t.tx.Rebind(query),
		item.ParentID,
		item.Name,
		item.URL,
		item.RouteName,
		item.Target,
		item.Icon,
		item.Order,
		item.IsActive,
		item.IsExternal,
		item.UpdatedAt,
		item.ID,
		item.TenantID,
	)
	if err != nil {
		return fmt.Errorf("update menu item %d: %w", item.ID, err)
	}
	return expectRow(result, item.ID)
}

func (t *sqlTx) SetOrder(ctx context.Context, id int64, order int) error {
	result, err := t.tx.ExecContext(ctx, t.tx.Rebind(`UPDATE menu_items SET sort_order = ?, updated_at = ? WHERE id = ?`), order, t.now(), id)
	if err != nil {
		return fmt.Errorf("set order of menu item %d: %w", id, err)
	}
	return expectRow(result, id)
}

func (t *sqlTx) Delete(ctx context.Context, id int64) error {
	result, err := t.tx.ExecContext(ctx, t.tx.Rebind(`DELETE FROM menu_items WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete menu item %d: %w", id, err)
	}
	return expectRow(result, id)
}

func listItems(ctx context.Context, q sqlx.ExtContext, filter Filter) ([]MenuItem, error) {
	where := []string{"tenant_id = ?"}
	args := []any{filter.TenantID}
	switch {
	case filter.RootOnly:
		where = append(where, "parent_id IS NULL")
	case filter.ParentID != nil:
		where = append(where, "parent_id = ?")
		args = append(args, *filter.ParentID)
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = ?")
		args = append(args, true)
	}
	if filter.ExcludeID > 0 {
		where = append(where, "id <> ?")
		args = append(args, filter.ExcludeID)
	}

	query := `SELECT ` + menuColumns + ` FROM menu_items WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY COALESCE(parent_id, 0), sort_order, id`
	items := make([]MenuItem, 0)
	if err := sqlx.SelectContext(ctx, q, &items, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	return items, nil
}

func getItem(ctx context.Context, q sqlx.ExtContext, tenantID string, id int64) (MenuItem, error) {
	var item MenuItem
	query := `SELECT ` + menuColumns + ` FROM menu_items WHERE id = ? AND tenant_id = ?`
	err := sqlx.GetContext(ctx, q, &item, q.Rebind(query), id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return MenuItem{}, ErrNotFound
	}
	if err != nil {
		return MenuItem{}, fmt.Errorf("get menu item %d: %w", id, err)
	}
	return item, nil
}

func expectRow(result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for menu item %d: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
