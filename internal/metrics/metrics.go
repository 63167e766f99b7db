package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns its own registry so tests can construct collectors
// without global registration clashes. It satisfies the
// instrumentation interfaces of the eta service, the ingest handler
// and the NATS sink.
type Collector struct {
	reg *prometheus.Registry

	ingestAccepted prometheus.Counter
	ingestRejected *prometheus.CounterVec

	etaRequests    *prometheus.CounterVec
	etaCacheHits   prometheus.Counter
	etaCacheMisses prometheus.Counter

	providerFailures *prometheus.CounterVec
	providerRejects  *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec

	wsClients       prometheus.Gauge
	publishedEvents prometheus.Counter
	natsPublishErrs prometheus.Counter
	natsUp          prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ingestAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusbus_ingest_accepted_total",
			Help: "Telemetry samples accepted and stored.",
		}),
		ingestRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusbus_ingest_rejected_total",
			Help: "Telemetry samples rejected before storage.",
		}, []string{"reason"}),
		etaRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusbus_eta_requests_total",
			Help: "ETA computations requested.",
		}, []string{"mode"}),
		etaCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusbus_eta_cache_hits_total",
			Help: "Ensemble results served from the short-TTL cache.",
		}),
		etaCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusbus_eta_cache_misses_total",
			Help: "Ensemble results computed fresh.",
		}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusbus_provider_failures_total",
			Help: "External directions calls that errored or timed out.",
		}, []string{"provider"}),
		providerRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusbus_provider_rejected_total",
			Help: "Provider candidates discarded by the plausibility gate.",
		}, []string{"provider"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campusbus_provider_latency_seconds",
			Help:    "Round-trip latency of external directions calls.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"provider"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "campusbus_ws_clients",
			Help: "Currently connected websocket viewers.",
		}),
		publishedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusbus_published_events_total",
			Help: "Live-update events published to sinks.",
		}),
		natsPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusbus_nats_publish_errors_total",
			Help: "NATS publish failures.",
		}),
		natsUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "campusbus_nats_connected",
			Help: "1 if the NATS connection is established, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		c.ingestAccepted, c.ingestRejected,
		c.etaRequests, c.etaCacheHits, c.etaCacheMisses,
		c.providerFailures, c.providerRejects, c.providerLatency,
		c.wsClients, c.publishedEvents,
		c.natsPublishErrs, c.natsUp,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// ingest handler hooks

func (c *Collector) IngestAccepted() { c.ingestAccepted.Inc() }

func (c *Collector) IngestRejected(reason string) {
	c.ingestRejected.WithLabelValues(reason).Inc()
}

// eta service hooks

func (c *Collector) ETARequest(mode string) { c.etaRequests.WithLabelValues(mode).Inc() }
func (c *Collector) ETACacheHit()           { c.etaCacheHits.Inc() }
func (c *Collector) ETACacheMiss()          { c.etaCacheMisses.Inc() }

func (c *Collector) ProviderFailure(name string) {
	c.providerFailures.WithLabelValues(name).Inc()
}

func (c *Collector) ProviderRejected(name string) {
	c.providerRejects.WithLabelValues(name).Inc()
}

func (c *Collector) ObserveProviderLatency(name string, d time.Duration) {
	c.providerLatency.WithLabelValues(name).Observe(d.Seconds())
}

// websocket hooks

func (c *Collector) WSClientConnected()    { c.wsClients.Inc() }
func (c *Collector) WSClientDisconnected() { c.wsClients.Dec() }

// publisher.NATSMetrics

func (c *Collector) NATSPublished() { c.publishedEvents.Inc() }

func (c *Collector) NATSPublishErr(string) { c.natsPublishErrs.Inc() }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.natsUp.Set(1)
	} else {
		c.natsUp.Set(0)
	}
}
