package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	PostsCreated  prometheus.Counter
	PostsDeleted  prometheus.Counter
	FeedRequests  *prometheus.CounterVec
	FanoutEvents  prometheus.Counter
	FanoutDropped prometheus.Counter
	LiveClients   prometheus.Gauge
	MediaReleases *prometheus.CounterVec
}

// NewMetrics creates the metrics set and registers it on the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PostsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "currents_posts_created_total",
			Help: "Total number of posts created",
		}),
		PostsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "currents_posts_deleted_total",
			Help: "Total number of posts deleted",
		}),
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "currents_feed_requests_total",
			Help: "Total number of feed page requests by feed kind",
		}, []string{"kind"}),
		FanoutEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "currents_fanout_events_total",
			Help: "Total number of new-post events delivered to live connections",
		}),
		FanoutDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "currents_fanout_dropped_total",
			Help: "Total number of new-post events dropped on slow or dead connections",
		}),
		LiveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "currents_live_clients",
			Help: "Current number of registered websocket connections",
		}),
		MediaReleases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "currents_media_releases_total",
			Help: "Total number of media release calls by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.PostsCreated,
		m.PostsDeleted,
		m.FeedRequests,
		m.FanoutEvents,
		m.FanoutDropped,
		m.LiveClients,
		m.MediaReleases,
	)

	return m
}

// NewNopMetrics returns an unregistered metrics set for tests
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
