// internal/metrics/metrics.go
//
// Prometheus collectors for the guessroom server.
// Responsibilities:
//   - Own a dedicated registry (Go + process collectors included).
//   - Expose actor lifecycle/operation metrics, room round metrics and broadcast backlog.
//   - Provide an http.Handler for GET /metrics.
//
// All recorder methods are nil-safe so packages can be used without metrics wired in
// (tests, the CLI).

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guessroom"

// Registry bundles the prometheus registry and every collector the server records into.
type Registry struct {
	reg *prometheus.Registry

	Actors    *Actors
	Rounds    *Rounds
	Broadcast *Broadcast
}

// New creates a registry with all guessroom collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		reg:       reg,
		Actors:    newActors(),
		Rounds:    newRounds(),
		Broadcast: newBroadcast(),
	}
	reg.MustRegister(
		r.Actors.active, r.Actors.activations, r.Actors.deactivations, r.Actors.failures, r.Actors.duration,
		r.Rounds.started, r.Rounds.resolved, r.Rounds.guesses,
		r.Broadcast.published, r.Broadcast.subscribers,
	)
	return r
}

// Handler serves the registry in the OpenMetrics format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Gatherer exposes the underlying registry (tests use it to read values back).
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Actors records activation manager behaviour, labelled by entity kind ("room", "player").
type Actors struct {
	active        *prometheus.GaugeVec
	activations   *prometheus.CounterVec
	deactivations *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

func newActors() *Actors {
	return &Actors{
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "actor", Name: "active",
			Help: "Live actor instances.",
		}, []string{"kind"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "actor", Name: "activations_total",
			Help: "Successful actor activations.",
		}, []string{"kind"}),
		deactivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "actor", Name: "deactivations_total",
			Help: "Actor deactivations (idle, forced or shutdown).",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "actor", Name: "activation_failures_total",
			Help: "Actor activations that failed to restore state.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "actor", Name: "operation_seconds",
			Help:    "Time spent executing a single actor operation.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"kind"}),
	}
}

func (a *Actors) Activated(kind string) {
	if a == nil {
		return
	}
	a.activations.WithLabelValues(kind).Inc()
	a.active.WithLabelValues(kind).Inc()
}

func (a *Actors) Deactivated(kind string) {
	if a == nil {
		return
	}
	a.deactivations.WithLabelValues(kind).Inc()
	a.active.WithLabelValues(kind).Dec()
}

func (a *Actors) ActivationFailed(kind string) {
	if a == nil {
		return
	}
	a.failures.WithLabelValues(kind).Inc()
}

func (a *Actors) Observe(kind string, d time.Duration) {
	if a == nil {
		return
	}
	a.duration.WithLabelValues(kind).Observe(d.Seconds())
}

// Rounds records the room state machine.
type Rounds struct {
	started  prometheus.Counter
	resolved prometheus.Counter
	guesses  prometheus.Counter
}

func newRounds() *Rounds {
	return &Rounds{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "round", Name: "started_total",
			Help: "Rounds that entered AwaitingGuesses.",
		}),
		resolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "round", Name: "resolved_total",
			Help: "Rounds resolved with a winner.",
		}),
		guesses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "round", Name: "guesses_total",
			Help: "Chat messages accepted as guesses.",
		}),
	}
}

func (r *Rounds) Started() {
	if r != nil {
		r.started.Inc()
	}
}

func (r *Rounds) Resolved() {
	if r != nil {
		r.resolved.Inc()
	}
}

func (r *Rounds) Guessed() {
	if r != nil {
		r.guesses.Inc()
	}
}

// Broadcast records fan-out volume and subscriber counts.
type Broadcast struct {
	published   prometheus.Counter
	subscribers prometheus.Gauge
}

func newBroadcast() *Broadcast {
	return &Broadcast{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broadcast", Name: "published_total",
			Help: "Events published to room channels.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "broadcast", Name: "subscribers",
			Help: "Currently attached subscriptions across all rooms.",
		}),
	}
}

func (b *Broadcast) Published() {
	if b != nil {
		b.published.Inc()
	}
}

func (b *Broadcast) Subscribed() {
	if b != nil {
		b.subscribers.Inc()
	}
}

func (b *Broadcast) Unsubscribed() {
	if b != nil {
		b.subscribers.Dec()
	}
}
