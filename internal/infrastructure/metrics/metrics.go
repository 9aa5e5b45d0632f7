// Package metrics exposes the Prometheus collectors of the relay.
//
// Realtime:
//   - chatrelay_ws_connections_active (gauge)
//   - chatrelay_rooms_active (gauge)
//   - chatrelay_relay_events_total{event} (counter)
//   - chatrelay_relay_deliveries_total{event} (counter)
//   - chatrelay_relay_dropped_total{reason} (counter)
//   - chatrelay_protocol_errors_total{code} (counter)
//   - chatrelay_presence_sink_dropped_total (counter)
//
// HTTP:
//   - chatrelay_http_requests_total{method,status} (counter)
//   - chatrelay_http_request_duration_seconds{method} (histogram)
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatrelay"

var (
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections_active",
		Help:      "Number of live realtime connections",
	})

	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rooms_active",
		Help:      "Number of rooms with at least one member",
	})

	RelayEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_events_total",
		Help:      "Inbound relay events accepted, by event name",
	}, []string{"event"})

	RelayDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_deliveries_total",
		Help:      "Outbound messages handed to member connections",
	}, []string{"event"})

	RelayDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_dropped_total",
		Help:      "Outbound messages not handed to a member connection",
	}, []string{"reason"})

	ProtocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "protocol_errors_total",
		Help:      "Inbound frames dropped as protocol errors",
	}, []string{"code"})

	PresenceSinkDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "presence_sink_dropped_total",
		Help:      "Presence notifications dropped because the sink buffer was full",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method and status",
	}, []string{"method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"method"})
)

func ObserveHTTP(method string, status int, seconds float64) {
	HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(seconds)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
