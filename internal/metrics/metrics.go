package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livepolls"

// Vote results used as the "result" label of VotesTotal.
const (
	ResultAccepted         = "accepted"
	ResultAlreadyVoted     = "already_voted"
	ResultPollNotFound     = "poll_not_found"
	ResultOptionNotFound   = "option_not_found"
	ResultIdentityMismatch = "identity_mismatch"
	ResultInvalid          = "invalid"
	ResultError            = "error"
)

/*
Metrics are registered on the registerer handed to New, so tests can use a
fresh prometheus.NewRegistry() per case instead of the global default one.

Poll ids are not used as labels: the set of polls is unbounded.
*/
type Metrics struct {
	VotesTotal      *prometheus.CounterVec
	PollsCreated    prometheus.Counter
	VoteProcessing  prometheus.Histogram
	LiveConnections prometheus.Gauge
	BroadcastsTotal *prometheus.CounterVec
	BroadcastDrops  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		VotesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "votes_total",
				Help:      "Vote submissions by outcome",
			},
			[]string{"result"},
		),
		PollsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "polls_created_total",
				Help:      "Total number of polls created",
			},
		),
		VoteProcessing: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "vote_processing_seconds",
				Help:      "Histogram of vote processing times",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
		LiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "live",
				Name:      "connections",
				Help:      "Currently registered live channels",
			},
		),
		BroadcastsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "live",
				Name:      "broadcasts_total",
				Help:      "Broadcast messages by type",
			},
			[]string{"type"},
		),
		BroadcastDrops: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "live",
				Name:      "broadcast_drops_total",
				Help:      "Messages dropped because a channel's send queue was full",
			},
		),
	}
}
