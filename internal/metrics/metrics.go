// Package metrics exposes the bridge's C9 observability surface as
// Prometheus instrumentation, complementing the status sink that drives
// per-account logging. Grounded on the teacher's own direct dependency on
// github.com/prometheus/client_golang (there used as a PromQL query client
// in internal/fallback; here used the conventional instrumentation way:
// counters/gauges registered against the default registry and served via
// promhttp.Handler).
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openclaw/ringcentral-bridge/internal/rctypes"
	"github.com/openclaw/ringcentral-bridge/internal/subscription"
)

// Registry bundles the per-account gauges/counters the Subscription
// Manager's status sink (spec.md §4.9) and the outbound/inbound paths
// update. One Registry is shared across every account's subscription
// goroutine, so the reconnect bookkeeping needs its own lock.
type Registry struct {
	reconnectsTotal   *prometheus.CounterVec
	lastInboundAt     *prometheus.GaugeVec
	lastOutboundAt    *prometheus.GaugeVec
	subscriptionState *prometheus.GaugeVec

	mu             sync.Mutex
	seenReconnects map[string]int
}

// New registers the bridge's metrics against the default Prometheus
// registry. Safe to call once per process.
func New() *Registry {
	return &Registry{
		reconnectsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ringcentral_bridge_reconnects_total",
			Help: "Total subscription reconnects, by account.",
		}, []string{"account_id"}),
		lastInboundAt: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ringcentral_bridge_last_inbound_timestamp_seconds",
			Help: "Unix timestamp of the last inbound websocket notification, by account.",
		}, []string{"account_id"}),
		lastOutboundAt: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ringcentral_bridge_last_outbound_timestamp_seconds",
			Help: "Unix timestamp of the last outbound post, by account.",
		}, []string{"account_id"}),
		subscriptionState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ringcentral_bridge_subscription_connected",
			Help: "1 if the account's subscription is in the Subscribed state, else 0.",
		}, []string{"account_id"}),
		seenReconnects: make(map[string]int),
	}
}

// Observe applies one Status snapshot (§4.9) to the registered series. The
// counter is monotonic, so it derives the delta from the last total seen
// per account rather than setting an absolute value.
func (r *Registry) Observe(status rctypes.Status) {
	if !status.LastInboundAt.IsZero() {
		r.lastInboundAt.WithLabelValues(status.AccountID).Set(float64(status.LastInboundAt.Unix()))
	}
	if !status.LastOutboundAt.IsZero() {
		r.lastOutboundAt.WithLabelValues(status.AccountID).Set(float64(status.LastOutboundAt.Unix()))
	}

	r.mu.Lock()
	delta := status.TotalReconnects - r.seenReconnects[status.AccountID]
	if delta > 0 {
		r.seenReconnects[status.AccountID] = status.TotalReconnects
	}
	r.mu.Unlock()
	if delta > 0 {
		r.reconnectsTotal.WithLabelValues(status.AccountID).Add(float64(delta))
	}

	connected := 0.0
	if status.State == string(subscription.StateSubscribed) {
		connected = 1.0
	}
	r.subscriptionState.WithLabelValues(status.AccountID).Set(connected)
}

// Handler returns the net/http handler serving /metrics (Prometheus text
// exposition format) and /healthz (a trivial liveness probe), bound by the
// caller to METRICS_ADDR.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
