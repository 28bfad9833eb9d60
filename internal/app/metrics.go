package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	treeCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "navtree",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Total number of menu tree cache lookups broken down by result.",
	}, []string{"result"})

	treeCacheInvalidate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "navtree",
		Subsystem: "cache",
		Name:      "invalidate_total",
		Help:      "Total number of menu tree cache invalidations broken down by reason.",
	}, []string{"reason"})

	menuMoves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "navtree",
		Subsystem: "menu",
		Name:      "moves_total",
		Help:      "Total number of move requests broken down by direction and result.",
	}, []string{"direction", "result"})

	menuWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "navtree",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of menu write conflicts broken down by kind.",
	}, []string{"kind"})
)

func recordCacheRequest(result string) {
	treeCacheRequests.WithLabelValues(result).Inc()
}

func recordCacheInvalidate(reason string) {
	if reason == "" {
		reason = "manual"
	}
	treeCacheInvalidate.WithLabelValues(reason).Inc()
}

func recordMove(direction, result string) {
	menuMoves.WithLabelValues(direction, result).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	menuWriteConflicts.WithLabelValues(kind).Inc()
}
