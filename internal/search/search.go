// Package search finds menu items by name, url or route. Meilisearch is used
// when it is reachable; otherwise queries fall back to the database.
package search

import (
	"context"
	"strconv"

	"navtree/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID        int64   `json:"id"`
	ParentID  *int64  `json:"parentId"`
	Name      string  `json:"name"`
	Snippet   string  `json:"snippet"`
	URL       *string `json:"url"`
	RouteName *string `json:"routeName"`
	IsActive  bool    `json:"isActive"`
}

// Query describes a search request.
type Query struct {
	Text     string
	TenantID string
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Source  string   `json:"source"`
}

// Searcher can execute a search against an index.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Fallback is the database search used when the index is unavailable.
type Fallback interface {
	Search(ctx context.Context, tenantID, text string, limit, offset int) ([]store.MenuItem, int, error)
}

// MenuRecord is the data we index for a menu item.
type MenuRecord struct {
	ID        string  `json:"id"`
	MenuID    int64   `json:"menuId"`
	TenantID  string  `json:"tenantId"`
	ParentID  *int64  `json:"parentId"`
	Name      string  `json:"name"`
	URL       *string `json:"url"`
	RouteName *string `json:"routeName"`
	IsActive  bool    `json:"isActive"`
}

// RecordFor converts a stored item into its index record. Index ids are
// strings so the primary key stays valid for any tenant layout.
func RecordFor(item store.MenuItem) MenuRecord {
	return MenuRecord{
		ID:        strconv.FormatInt(item.ID, 10),
		MenuID:    item.ID,
		TenantID:  item.TenantID,
		ParentID:  item.ParentID,
		Name:      item.Name,
		URL:       item.URL,
		RouteName: item.RouteName,
		IsActive:  item.IsActive,
	}
}

func resultFor(item store.MenuItem) Result {
	return Result{
		ID:        item.ID,
		ParentID:  item.ParentID,
		Name:      item.Name,
		Snippet:   item.Name,
		URL:       item.URL,
		RouteName: item.RouteName,
		IsActive:  item.IsActive,
	}
}
