package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var reg = prometheus.NewRegistry()

func counter(name, help string) prometheus.Counter {
	return promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      name,
		Help:      help,
	})
}

func gauge(name, help string) prometheus.Gauge {
	return promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Namespace: "engine",
		Name:      name,
		Help:      help,
	})
}

func histogram(name, help string) prometheus.Histogram {
	return promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
		Namespace: "engine",
		Name:      name,
		Help:      help,
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	})
}

// Metrics is the global metrics registry. Every component records through
// this instead of holding its own counters, so /metrics reflects the whole
// process.
var Metrics = struct {
	EventStatesReceived prometheus.Counter
	PlaysObserved       prometheus.Counter
	PricesReceived      prometheus.Counter
	SignalsEmitted      prometheus.Counter
	SignalsRejected     *prometheus.CounterVec
	OrdersSent          prometheus.Counter
	OrderErrors         prometheus.Counter
	OrderFills          prometheus.Counter
	ActiveEvents        prometheus.Gauge
	OpenPositions       prometheus.Gauge
	BankrollCents       prometheus.Gauge
	InboxOverflows      *prometheus.CounterVec
	WSReconnects        *prometheus.CounterVec
	SignalLatency       prometheus.Histogram
	OrderE2ELatency     prometheus.Histogram
	RateLimiterWait     prometheus.Histogram
}{
	EventStatesReceived: counter("event_states_received_total", "event state updates consumed from the provider"),
	PlaysObserved:       counter("plays_observed_total", "plays observed across all events"),
	PricesReceived:      counter("prices_received_total", "order book updates consumed from venues"),
	SignalsEmitted:      counter("signals_emitted_total", "signals that passed every gate"),
	SignalsRejected: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "signals_rejected_total",
		Help:      "signals rejected, by reason",
	}, []string{"reason"}),
	OrdersSent:      counter("orders_sent_total", "execution requests sent to a venue"),
	OrderErrors:     counter("order_errors_total", "execution requests that errored"),
	OrderFills:      counter("order_fills_total", "execution requests that filled"),
	ActiveEvents:    gauge("active_events", "events currently assigned to a shard"),
	OpenPositions:   gauge("open_positions", "positions currently open"),
	BankrollCents:   gauge("bankroll_cents", "current bankroll balance in cents"),
	InboxOverflows: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "inbox_overflows_total",
		Help:      "shard inbox drops, by event_id",
	}, []string{"event_id"}),
	WSReconnects: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "ws_reconnects_total",
		Help:      "venue websocket reconnects, by venue",
	}, []string{"venue"}),
	SignalLatency:   histogram("signal_latency_seconds", "time from price/state tick to signal emission"),
	OrderE2ELatency: histogram("order_e2e_latency_seconds", "time from signal emission to terminal order status"),
	RateLimiterWait: histogram("rate_limiter_wait_seconds", "time spent waiting on the venue rate limiter"),
}

// Handler returns the /metrics HTTP handler for the process's registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
