// Package tree projects flat menu records into nested forests. Records are
// keyed by id with a parent reference; the nested form is derived on demand
// and never stored.
package tree

import (
	"sort"
	"strings"

	"navtree/api/internal/store"
)

// IndentUnit prefixes a name once per level of depth.
const IndentUnit = "— "

// Node is a menu item with its ordered children attached.
type Node struct {
	store.MenuItem
	Depth    int    `json:"depth"`
	Children []Node `json:"children"`
}

// Assemble builds the forest rooted at the items without a parent. Children
// are ordered by (order, id). Items whose parent is missing, or that sit on a
// parent cycle, cannot be reached from a root and are left out.
func Assemble(items []store.MenuItem) []Node {
	roots := make([]store.MenuItem, 0)
	childMap := make(map[int64][]store.MenuItem)
	for _, item := range items {
		if item.ParentID == nil {
			roots = append(roots, item)
			continue
		}
		childMap[*item.ParentID] = append(childMap[*item.ParentID], item)
	}

	visited := make(map[int64]bool, len(items))
	return attach(roots, childMap, visited, 0)
}

func attach(items []store.MenuItem, childMap map[int64][]store.MenuItem, visited map[int64]bool, depth int) []Node {
	sortItems(items)
	nodes := make([]Node, 0, len(items))
	for _, item := range items {
		if visited[item.ID] {
			continue
		}
		visited[item.ID] = true
		nodes = append(nodes, Node{
			MenuItem: item,
			Depth:    depth,
			Children: attach(childMap[item.ID], childMap, visited, depth+1),
		})
	}
	return nodes
}

func sortItems(items []store.MenuItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].ID < items[j].ID
	})
}

// Active drops inactive nodes together with everything below them.
func Active(forest []Node) []Node {
	out := make([]Node, 0, len(forest))
	for _, node := range forest {
		if !node.IsActive {
			continue
		}
		node.Children = Active(node.Children)
		out = append(out, node)
	}
	return out
}

// FindByRoute returns the first root whose route name equals route.
func FindByRoute(forest []Node, route string) (Node, bool) {
	for _, node := range forest {
		if node.RouteName != nil && *node.RouteName == route {
			return node, true
		}
	}
	return Node{}, false
}

// Walk visits every node depth-first in display order.
func Walk(forest []Node, fn func(Node)) {
	for _, node := range forest {
		fn(node)
		Walk(node.Children, fn)
	}
}

// Count returns the number of nodes in the forest.
func Count(forest []Node) int {
	n := 0
	Walk(forest, func(Node) { n++ })
	return n
}

// Index answers parent-chain questions over a flat record set.
type Index struct {
	items []store.MenuItem
	byID  map[int64]store.MenuItem
}

func NewIndex(items []store.MenuItem) *Index {
	byID := make(map[int64]store.MenuItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	return &Index{items: items, byID: byID}
}

// Depth counts the parent hops above item. The walk stops at a missing parent
// or at the first id seen twice, so corrupted data yields a finite answer.
func (x *Index) Depth(item store.MenuItem) int {
	depth := 0
	visited := map[int64]bool{item.ID: true}
	current := item
	for current.ParentID != nil {
		parent, ok := x.byID[*current.ParentID]
		if !ok || visited[parent.ID] {
			break
		}
		visited[parent.ID] = true
		depth++
		current = parent
	}
	return depth
}

func (x *Index) IndentedName(item store.MenuItem) string {
	return Indent(item.Name, x.Depth(item))
}

func Indent(name string, depth int) string {
	return strings.Repeat(IndentUnit, depth) + name
}

// Option is one entry of a parent picker.
type Option struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
	Depth int    `json:"depth"`
}

// ParentOptions lists every item except excludeID, in index order, labelled
// with its indented name.
func (x *Index) ParentOptions(excludeID int64) []Option {
	options := make([]Option, 0, len(x.items))
	for _, item := range x.items {
		if item.ID == excludeID {
			continue
		}
		depth := x.Depth(item)
		options = append(options, Option{ID: item.ID, Label: Indent(item.Name, depth), Depth: depth})
	}
	return options
}

// Descends reports whether candidate is ancestor itself or lies below it.
func (x *Index) Descends(candidate, ancestor int64) bool {
	visited := make(map[int64]bool)
	id := candidate
	for {
		if id == ancestor {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		item, ok := x.byID[id]
		if !ok || item.ParentID == nil {
			return false
		}
		id = *item.ParentID
	}
}

// Render writes the forest as indented lines, one node per line.
func Render(forest []Node) string {
	var b strings.Builder
	Walk(forest, func(n Node) {
		b.WriteString(Indent(n.Name, n.Depth))
		if !n.IsActive {
			b.WriteString(" (inactive)")
		}
		b.WriteByte('\n')
	})
	return b.String()
}
