package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"navtree/api/internal/logging"
	"navtree/api/internal/notify"
	"navtree/api/internal/ordering"
	"navtree/api/internal/sanitize"
	"navtree/api/internal/store"
)

// MenuInput carries the writable fields of a menu item. Nil pointers on
// update keep the stored value for IsActive and IsExternal; every other field
// is replaced.
type MenuInput struct {
	ParentID   *int64  `json:"parentId"`
	Name       string  `json:"name" validate:"required,max=255,menu_name"`
	URL        *string `json:"url" validate:"omitempty,max=500"`
	RouteName  *string `json:"routeName" validate:"omitempty,max=255,route_name"`
	Target     string  `json:"target" validate:"omitempty,oneof=_self _blank"`
	Icon       *string `json:"icon" validate:"omitempty,max=255"`
	Order      int     `json:"order" validate:"max=2147483647"`
	IsActive   *bool   `json:"isActive"`
	IsExternal *bool   `json:"isExternal"`
}

// InputFrom copies a stored item into a MenuInput.
func InputFrom(item store.MenuItem) MenuInput {
	active, external := item.IsActive, item.IsExternal
	return MenuInput{
		ParentID:   item.ParentID,
		Name:       item.Name,
		URL:        item.URL,
		RouteName:  item.RouteName,
		Target:     item.Target,
		Icon:       item.Icon,
		Order:      item.Order,
		IsActive:   &active,
		IsExternal: &external,
	}
}

// MoveResult reports the outcome of a move request.
type MoveResult struct {
	Item      store.MenuItem `json:"item"`
	Available bool           `json:"available"`
	Moved     bool           `json:"moved"`
}

// write is one mutation travelling through the pipeline:
// validate, sanitize, lock, resolve order and persist, then invalidate.
type write struct {
	kind   string
	tenant string
	menuID int64
	input  *MenuInput
	// lock returns the sibling groups the mutation touches.
	lock func(ctx context.Context) ([]store.GroupKey, error)
	// persist runs inside the group locks and may resolve orders.
	persist func(ctx context.Context, tx store.Tx) error

	// Filled by persist.
	saved   []store.MenuItem
	removed []int64
	skipped bool
}

func (s *Service) run(ctx context.Context, w *write) error {
	if w.input != nil {
		details, err := s.validator.Struct(w.input)
		if err != nil {
			return err
		}
		if details != nil {
			return validationError(details)
		}
		w.input.sanitize()
		// Sanitising can lengthen a value (a relative URL gains its leading slash).
		if details, err = s.validator.Struct(w.input); err != nil {
			return err
		}
		if details != nil {
			return validationError(details)
		}
	}

	keys, err := w.lock(ctx)
	if err != nil {
		return err
	}
	if err := s.store.WithGroups(ctx, keys, func(tx store.Tx) error {
		return w.persist(ctx, tx)
	}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound()
		}
		return err
	}
	if w.skipped {
		return nil
	}

	s.trees.invalidate(ctx, w.tenant, w.kind)
	event := notify.Event{Kind: w.kind, TenantID: w.tenant, MenuID: w.menuID, Source: s.source, At: time.Now().UTC()}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger(ctx).WithError(err).Warn("refresh notification failed")
	}
	for _, item := range w.saved {
		s.search.IndexMenu(item)
	}
	s.search.DeleteMenus(w.removed)

	s.logger(ctx).WithFields(logrus.Fields{
		"menu_id": w.menuID,
		"tenant":  w.tenant,
		"kind":    w.kind,
	}).Info("menu tree changed")
	return nil
}

func (s *Service) logger(ctx context.Context) logrus.FieldLogger {
	return logging.FromContext(ctx, s.log)
}

func (in *MenuInput) sanitize() {
	fields := sanitize.Fields{Name: in.Name, URL: in.URL, RouteName: in.RouteName}
	fields.Apply()
	in.Name, in.URL, in.RouteName = fields.Name, fields.URL, fields.RouteName
	if in.URL != nil && *in.URL == "" {
		in.URL = nil
	}
	if in.RouteName != nil && *in.RouteName == "" {
		in.RouteName = nil
	}
	if in.Target == "" {
		in.Target = store.TargetSelf
	}
}

// apply copies the input onto item. Unset flags keep item's values.
func (in *MenuInput) apply(item *store.MenuItem) {
	item.ParentID = in.ParentID
	item.Name = in.Name
	item.URL = in.URL
	item.RouteName = in.RouteName
	item.Target = in.Target
	item.Icon = in.Icon
	if in.IsActive != nil {
		item.IsActive = *in.IsActive
	}
	if in.IsExternal != nil {
		item.IsExternal = *in.IsExternal
	}
}

// checkParent rejects parents outside the tenant, the item itself, and the
// item's descendants.
func checkParent(ctx context.Context, tx store.Tx, tenant string, id int64, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	if id != 0 && *parentID == id {
		return validationError(map[string]string{"parentId": "cannot be the item itself"})
	}
	if _, err := tx.Get(ctx, tenant, *parentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return validationError(map[string]string{"parentId": "does not exist"})
		}
		return err
	}
	if id == 0 {
		return nil
	}
	subtree, err := tx.SubtreeIDs(ctx, id)
	if err != nil {
		return err
	}
	for _, descendant := range subtree {
		if descendant == *parentID {
			return validationError(map[string]string{"parentId": "cannot be one of the item's descendants"})
		}
	}
	return nil
}

// resolveOrder assigns item a free order among its siblings.
func resolveOrder(ctx context.Context, tx store.Tx, item *store.MenuItem, proposed int) error {
	siblings, err := tx.Siblings(ctx, item.Group(), item.ID)
	if err != nil {
		return err
	}
	order, err := ordering.Resolve(proposed, ordersOf(siblings))
	if errors.Is(err, ordering.ErrOrdersExhausted) {
		return validationError(map[string]string{"order": "no free order left in this group, reorder the siblings first"})
	}
	if err != nil {
		return err
	}
	item.Order = order
	return nil
}

// Create validates, sanitises and stores a new item.
func (s *Service) Create(ctx context.Context, tenant string, input MenuInput) (store.MenuItem, error) {
	item := store.MenuItem{TenantID: tenant, IsActive: true}
	w := &write{kind: notify.Created, tenant: tenant, input: &input}
	w.lock = func(context.Context) ([]store.GroupKey, error) {
		return []store.GroupKey{{TenantID: tenant, ParentID: input.ParentID}}, nil
	}
	w.persist = func(ctx context.Context, tx store.Tx) error {
		if err := checkParent(ctx, tx, tenant, 0, input.ParentID); err != nil {
			return err
		}
		input.apply(&item)
		if input.IsExternal == nil {
			item.IsExternal = sanitize.IsExternal(item.URL)
		}
		if err := resolveOrder(ctx, tx, &item, input.Order); err != nil {
			return err
		}
		if err := tx.Insert(ctx, &item); err != nil {
			return err
		}
		w.menuID = item.ID
		w.saved = []store.MenuItem{item}
		return nil
	}
	if err := s.run(ctx, w); err != nil {
		return store.MenuItem{}, err
	}
	return item, nil
}

// Update replaces an item's fields and re-resolves its order. Re-parenting
// locks both the old and the new sibling group.
func (s *Service) Update(ctx context.Context, tenant string, id int64, input MenuInput) (store.MenuItem, error) {
	var item store.MenuItem
	var lockedFrom store.GroupKey
	w := &write{kind: notify.Updated, tenant: tenant, menuID: id, input: &input}
	w.lock = func(ctx context.Context) ([]store.GroupKey, error) {
		current, err := s.Get(ctx, tenant, id)
		if err != nil {
			return nil, err
		}
		lockedFrom = current.Group()
		return []store.GroupKey{lockedFrom, {TenantID: tenant, ParentID: input.ParentID}}, nil
	}
	w.persist = func(ctx context.Context, tx store.Tx) error {
		current, err := s.lockedItem(ctx, tx, tenant, id, lockedFrom)
		if err != nil {
			return err
		}
		if err := checkParent(ctx, tx, tenant, id, input.ParentID); err != nil {
			return err
		}
		item = current
		input.apply(&item)
		if err := resolveOrder(ctx, tx, &item, input.Order); err != nil {
			return err
		}
		if err := tx.Update(ctx, &item); err != nil {
			return err
		}
		w.saved = []store.MenuItem{item}
		return nil
	}
	if err := s.run(ctx, w); err != nil {
		return store.MenuItem{}, err
	}
	return item, nil
}

// SetActive toggles visibility through the regular update path.
func (s *Service) SetActive(ctx context.Context, tenant string, id int64, active bool) (store.MenuItem, error) {
	current, err := s.Get(ctx, tenant, id)
	if err != nil {
		return store.MenuItem{}, err
	}
	input := InputFrom(current)
	input.IsActive = &active
	return s.Update(ctx, tenant, id, input)
}

// Delete removes an item; its descendants go with it through the cascade.
// It returns the ids of every removed record.
func (s *Service) Delete(ctx context.Context, tenant string, id int64) ([]int64, error) {
	return s.DeleteMany(ctx, tenant, []int64{id})
}

// DeleteMany removes several items in one transaction. Ids already removed as
// descendants of an earlier id are skipped; unknown ids fail the whole call.
func (s *Service) DeleteMany(ctx context.Context, tenant string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, validationError(map[string]string{"ids": "is required"})
	}
	w := &write{kind: notify.Deleted, tenant: tenant, menuID: ids[0]}
	w.lock = func(ctx context.Context) ([]store.GroupKey, error) {
		keys := make([]store.GroupKey, 0, len(ids))
		for _, id := range ids {
			item, err := s.Get(ctx, tenant, id)
			if err != nil {
				return nil, err
			}
			keys = append(keys, item.Group())
		}
		return keys, nil
	}
	w.persist = func(ctx context.Context, tx store.Tx) error {
		gone := make(map[int64]bool)
		for _, id := range ids {
			if gone[id] {
				continue
			}
			if _, err := tx.Get(ctx, tenant, id); err != nil {
				return err
			}
			subtree, err := tx.SubtreeIDs(ctx, id)
			if err != nil {
				return err
			}
			if err := tx.Delete(ctx, id); err != nil {
				return err
			}
			for _, removed := range subtree {
				if !gone[removed] {
					gone[removed] = true
					w.removed = append(w.removed, removed)
				}
			}
		}
		return nil
	}
	if err := s.run(ctx, w); err != nil {
		return nil, err
	}
	return w.removed, nil
}

func (s *Service) MoveUp(ctx context.Context, tenant string, id int64) (MoveResult, error) {
	return s.move(ctx, tenant, id, ordering.Up)
}

func (s *Service) MoveDown(ctx context.Context, tenant string, id int64) (MoveResult, error) {
	return s.move(ctx, tenant, id, ordering.Down)
}

// move swaps the item with its neighbour in dir and renumbers the group
// densely. Unavailable moves change nothing and leave the cache alone.
func (s *Service) move(ctx context.Context, tenant string, id int64, dir ordering.Direction) (MoveResult, error) {
	var result MoveResult
	var lockedFrom store.GroupKey
	w := &write{kind: notify.Moved, tenant: tenant, menuID: id}
	w.lock = func(ctx context.Context) ([]store.GroupKey, error) {
		current, err := s.Get(ctx, tenant, id)
		if err != nil {
			return nil, err
		}
		lockedFrom = current.Group()
		return []store.GroupKey{lockedFrom}, nil
	}
	w.persist = func(ctx context.Context, tx store.Tx) error {
		item, err := s.lockedItem(ctx, tx, tenant, id, lockedFrom)
		if err != nil {
			return err
		}
		siblings, err := tx.Siblings(ctx, lockedFrom, id)
		if err != nil {
			return err
		}
		result.Item = item
		plan, ok := ordering.PlanMove(slotOf(item), slotsOf(siblings), dir)
		if !ok {
			w.skipped = true
			return nil
		}
		result.Available = true
		result.Moved = plan.Moved
		for _, change := range plan.Changes {
			if err := tx.SetOrder(ctx, change.ID, change.Order); err != nil {
				return err
			}
			if change.ID == id {
				result.Item.Order = change.Order
			}
		}
		return nil
	}
	if err := s.run(ctx, w); err != nil {
		recordMove(dir.String(), "error")
		return MoveResult{}, err
	}

	switch {
	case !result.Available:
		recordMove(dir.String(), "unavailable")
	case result.Moved:
		recordMove(dir.String(), "moved")
	default:
		recordMove(dir.String(), "noop")
	}
	return result, nil
}

// lockedItem re-reads an item inside the transaction and fails with a
// conflict when it left the group that was locked for it.
func (s *Service) lockedItem(ctx context.Context, tx store.Tx, tenant string, id int64, lockedFrom store.GroupKey) (store.MenuItem, error) {
	item, err := tx.Get(ctx, tenant, id)
	if err != nil {
		return store.MenuItem{}, err
	}
	if item.Group().String() != lockedFrom.String() {
		recordWriteConflict("group_changed")
		return store.MenuItem{}, errGroupChanged
	}
	return item, nil
}
