package search

import (
	"context"
	"strconv"

	"github.com/sirupsen/logrus"

	"navtree/api/internal/store"
)

// Result sources reported in Response.Source.
const (
	SourceIndex    = "meilisearch"
	SourceDatabase = "database"
)

// Index is the write side of a search backend.
type Index interface {
	Searcher
	IndexMenus(records []MenuRecord) error
	DeleteMenu(id string) error
}

// Service is the facade that tries the index first and falls back to the database.
type Service struct {
	index    Index
	fallback Fallback
	log      logrus.FieldLogger
}

// NewService creates a search service. index may be nil when Meilisearch is not configured.
func NewService(index Index, fallback Fallback, log logrus.FieldLogger) *Service {
	return &Service{index: index, fallback: fallback, log: log.WithField("component", "search")}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search tries the index if healthy, otherwise falls back to the database.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	if s.indexReady() {
		results, total, err := s.index.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: SourceIndex}
		}
		s.log.WithError(err).Warn("meilisearch error, falling back to database")
	}

	items, total, err := s.fallback.Search(ctx, q.TenantID, q.Text, q.Limit, q.Offset)
	if err != nil {
		s.log.WithError(err).Error("database search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Source: SourceDatabase}
	}
	results := make([]Result, 0, len(items))
	for _, item := range items {
		results = append(results, resultFor(item))
	}
	return Response{Results: results, Total: total, Query: q.Text, Source: SourceDatabase}
}

// IndexMenu indexes a menu item (fire-and-forget).
func (s *Service) IndexMenu(item store.MenuItem) {
	if !s.indexReady() {
		return
	}
	record := RecordFor(item)
	go func() {
		if err := s.index.IndexMenus([]MenuRecord{record}); err != nil {
			s.log.WithError(err).WithField("menu_id", record.MenuID).Warn("index menu item")
		}
	}()
}

// DeleteMenus removes menu items from the index (fire-and-forget).
func (s *Service) DeleteMenus(ids []int64) {
	if !s.indexReady() || len(ids) == 0 {
		return
	}
	go func() {
		for _, id := range ids {
			if err := s.index.DeleteMenu(strconv.FormatInt(id, 10)); err != nil {
				s.log.WithError(err).WithField("menu_id", id).Warn("delete menu item from index")
			}
		}
	}()
}

// Reindex pushes every given item into the index synchronously. It returns
// the number of records sent, or zero when no index is available.
func (s *Service) Reindex(items []store.MenuItem) (int, error) {
	if !s.indexReady() {
		return 0, nil
	}
	records := make([]MenuRecord, 0, len(items))
	for _, item := range items {
		records = append(records, RecordFor(item))
	}
	if err := s.index.IndexMenus(records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Available reports whether searches currently reach the index.
func (s *Service) Available() bool {
	return s.indexReady()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
