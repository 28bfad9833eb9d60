package store

import (
	"errors"
	"fmt"
	"time"
)

const (
	TargetSelf  = "_self"
	TargetBlank = "_blank"
)

// ErrNotFound is returned when a menu item does not exist (or belongs to another tenant).
var ErrNotFound = errors.New("menu item not found")

type MenuItem struct {
	ID         int64     `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"tenantId,omitempty"`
	ParentID   *int64    `db:"parent_id" json:"parentId"`
	Name       string    `db:"name" json:"name"`
	URL        *string   `db:"url" json:"url"`
	RouteName  *string   `db:"route_name" json:"routeName"`
	Target     string    `db:"target" json:"target"`
	Icon       *string   `db:"icon" json:"icon"`
	Order      int       `db:"sort_order" json:"order"`
	IsActive   bool      `db:"is_active" json:"isActive"`
	IsExternal bool      `db:"is_external" json:"isExternal"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// Group returns the sibling group the item belongs to.
func (m MenuItem) Group() GroupKey {
	return GroupKey{TenantID: m.TenantID, ParentID: m.ParentID}
}

// GroupKey identifies a sibling group: all items of one tenant sharing a parent.
// A nil ParentID is the root group.
type GroupKey struct {
	TenantID string
	ParentID *int64
}

func (k GroupKey) String() string {
	parent := "root"
	if k.ParentID != nil {
		parent = fmt.Sprintf("%d", *k.ParentID)
	}
	return fmt.Sprintf("menu_group:%s:%s", k.TenantID, parent)
}

// Filter narrows List results. Zero value lists every item of the default tenant.
type Filter struct {
	TenantID   string
	ParentID   *int64
	RootOnly   bool
	ActiveOnly bool
	ExcludeID  int64
}
