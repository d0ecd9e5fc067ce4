// Package metrics holds the Prometheus collectors of the bid engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BidsPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "bidding",
			Name:      "bids_placed_total",
			Help:      "Bid rows written, by origin",
		},
		[]string{"origin"}, // manual, auto_opening, cascade
	)

	BidRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "bidding",
			Name:      "bid_rejections_total",
			Help:      "Bids rejected by validation, by reason",
		},
		[]string{"reason"},
	)

	CascadeSteps = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "auction",
			Subsystem: "bidding",
			Name:      "cascade_steps",
			Help:      "Automatic counter-bids written per placed bid",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	AuctionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "closing",
			Name:      "auctions_closed_total",
			Help:      "Auctions transitioned out of active, by outcome and trigger",
		},
		[]string{"outcome", "trigger"},
	)

	PaymentsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "settlement",
			Name:      "payments_total",
			Help:      "Payment outcomes recorded",
		},
		[]string{"outcome"},
	)

	CommitConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "ledger",
			Name:      "commit_conflicts_total",
			Help:      "Lost compare-and-swap commits, by operation",
		},
		[]string{"operation"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events handed to a transport, by transport and result",
		},
		[]string{"transport", "result"},
	)
)
