package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"
)

const idxMenuItems = "navtree_menu_items"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     logrus.FieldLogger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the menu index.
// The service stays usable when the first health check fails; a background
// loop reconfigures the index once Meilisearch comes back.
func NewMeili(url, apiKey string, log logrus.FieldLogger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		log:    log.WithField("component", "search"),
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		m.log.WithError(err).Warnf("meilisearch unavailable at %s", url)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxMenuItems,
		PrimaryKey: "id",
	}); err != nil {
		m.log.WithError(err).Debugf("create index %s (may already exist)", idxMenuItems)
	}

	index := m.client.Index(idxMenuItems)
	filterable := []interface{}{"tenantId", "isActive", "parentId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.WithError(err).Warnf("update filterable attrs for %s", idxMenuItems)
	}
	searchable := []string{"name", "routeName", "url"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.WithError(err).Warnf("update searchable attrs for %s", idxMenuItems)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:              idxMenuItems,
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			Filter:                []string{tenantFilter(q.TenantID)},
			AttributesToHighlight: []string{"name"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func tenantFilter(tenantID string) string {
	return fmt.Sprintf("tenantId = %q", tenantID)
}

func hitToResult(hit meili.Hit) Result {
	var r Result
	decode(hit, "menuId", &r.ID)
	decode(hit, "parentId", &r.ParentID)
	decode(hit, "name", &r.Name)
	decode(hit, "url", &r.URL)
	decode(hit, "routeName", &r.RouteName)
	decode(hit, "isActive", &r.IsActive)
	r.Snippet = firstNonBlank(decodeFormattedString(hit, "name"), r.Name)
	return r
}

func decode(hit meili.Hit, key string, dst any) {
	raw, ok := hit[key]
	if !ok {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	value, _ := formatted[key].(string)
	return strings.TrimSpace(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexMenus adds or updates menu records in the index.
func (m *Meili) IndexMenus(records []MenuRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxMenuItems).AddDocuments(records, nil)
	return err
}

// DeleteMenu removes a menu record from the index.
func (m *Meili) DeleteMenu(id string) error {
	_, err := m.client.Index(idxMenuItems).DeleteDocument(id, nil)
	return err
}
