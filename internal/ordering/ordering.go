// Package ordering computes sibling ranks for menu items. It is pure: callers
// load the sibling group, ask for a resolved order or a move plan, and
// persist the result inside the group's lock.
package ordering

import (
	"errors"
	"math"
	"sort"
)

// Direction of a single-step move within a sibling group.
type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Slot is the part of a menu item the ordering rules look at.
type Slot struct {
	ID    int64
	Order int
}

// MaxOrder is the largest order a stored item can hold.
const MaxOrder = math.MaxInt32

// ErrOrdersExhausted is returned when a colliding order cannot be appended
// because a sibling already holds MaxOrder.
var ErrOrdersExhausted = errors.New("no order left after the highest sibling")

// Resolve returns the order a saved item should get. The proposal is clamped
// to 0..MaxOrder; a value already held by a sibling is replaced with one past
// the current maximum, so existing items are never displaced. Gaps are kept.
func Resolve(proposed int, siblingOrders []int) (int, error) {
	proposed = max(0, min(proposed, MaxOrder))
	highest := -1
	collides := false
	for _, order := range siblingOrders {
		if order == proposed {
			collides = true
		}
		if order > highest {
			highest = order
		}
	}
	if !collides {
		return proposed, nil
	}
	if highest >= MaxOrder {
		return 0, ErrOrdersExhausted
	}
	return highest + 1, nil
}

// Availability reports which moves may be offered for an item.
type Availability struct {
	CanMoveUp   bool `json:"canMoveUp"`
	CanMoveDown bool `json:"canMoveDown"`
}

// CanMove applies the availability rules: nothing moves without siblings, and
// an item already at order zero cannot move up. Moving down is offered for the
// last item too; that move is a no-op (see PlanMove).
func CanMove(item Slot, siblings []Slot) Availability {
	if len(siblings) == 0 {
		return Availability{}
	}
	return Availability{
		CanMoveUp:   item.Order > 0,
		CanMoveDown: true,
	}
}

// Plan is the outcome of a move.
type Plan struct {
	// Sequence is the whole group, item included, in its new dense order.
	Sequence []Slot
	// Changes lists the slots whose stored order differs from Sequence.
	Changes []Slot
	// Moved is false when the item keeps its rank, e.g. moving the last item down.
	Moved bool
}

// PlanMove moves item one rank in dir. The sibling holding the target rank
// takes the item's old rank, then the group is renumbered 0..N-1 by
// (order, id). Ranks are taken from the (order, id) sort, so groups with gaps
// or duplicate orders behave as if they were already dense. ok is false when
// CanMove forbids the move.
func PlanMove(item Slot, siblings []Slot, dir Direction) (plan Plan, ok bool) {
	avail := CanMove(item, siblings)
	if (dir == Up && !avail.CanMoveUp) || (dir == Down && !avail.CanMoveDown) {
		return Plan{}, false
	}

	stored := make(map[int64]int, len(siblings)+1)
	group := make([]Slot, 0, len(siblings)+1)
	for _, s := range siblings {
		if s.ID == item.ID {
			continue
		}
		stored[s.ID] = s.Order
		group = append(group, s)
	}
	stored[item.ID] = item.Order
	group = append(group, item)

	ranked := Resequence(group)
	from := indexOf(ranked, item.ID)
	to := from + 1
	if dir == Up {
		to = from - 1
	}
	if to >= 0 && to < len(ranked) {
		ranked[from].Order, ranked[to].Order = ranked[to].Order, ranked[from].Order
	}

	plan.Sequence = Resequence(ranked)
	plan.Moved = indexOf(plan.Sequence, item.ID) != from
	for _, s := range plan.Sequence {
		if stored[s.ID] != s.Order {
			plan.Changes = append(plan.Changes, s)
		}
	}
	return plan, true
}

// Resequence returns slots sorted by (order, id) and renumbered 0..N-1.
func Resequence(slots []Slot) []Slot {
	out := make([]Slot, len(slots))
	copy(out, slots)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	for i := range out {
		out[i].Order = i
	}
	return out
}

func indexOf(slots []Slot, id int64) int {
	for i, s := range slots {
		if s.ID == id {
			return i
		}
	}
	return -1
}
