package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/attendance-notify/internal/connection"
)

const namespace = "whatsapp"

// Send results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Recorder implements connection.Observer on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	state           prometheus.Gauge
	ready           prometheus.Gauge
	restartAttempts prometheus.Gauge
	transitions     *prometheus.CounterVec
	restarts        prometheus.Counter
	restartDelay    prometheus.Histogram
	sent            *prometheus.CounterVec
	sendDuration    prometheus.Histogram
}

var _ connection.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder with Go runtime and process collectors
// registered alongside it.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		state: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current manager state (0=uninitialized 1=initializing 2=authenticated 3=ready 4=disconnected 5=auth_failed 6=error)",
		}),
		ready: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready",
			Help:      "1 when messages can be sent",
		}),
		restartAttempts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "restart_attempts",
			Help:      "Automatic restarts since the session was last ready",
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "State transitions by source and destination",
		}, []string{"from", "to"}),
		restarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_scheduled_total",
			Help:      "Automatic restarts scheduled",
		}),
		restartDelay: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "restart_delay_seconds",
			Help:      "Backoff delay of scheduled restarts",
			Buckets:   []float64{5, 10, 15, 30, 60, 120, 240},
		}),
		sent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Send attempts by delivery strategy and result",
		}, []string{"strategy", "result"}),
		sendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "End to end SendMessage latency including retries",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// Registry returns the registry the metrics live on.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// StateChanged implements connection.Observer.
func (r *Recorder) StateChanged(from, to connection.State, st connection.Status) {
	r.state.Set(float64(to))
	r.restartAttempts.Set(float64(st.RestartAttempts))
	if st.Ready {
		r.ready.Set(1)
	} else {
		r.ready.Set(0)
	}
	r.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

// RestartScheduled implements connection.Observer.
func (r *Recorder) RestartScheduled(attempt int, delay time.Duration) {
	r.restarts.Inc()
	r.restartAttempts.Set(float64(attempt))
	r.restartDelay.Observe(delay.Seconds())
}

// SendCompleted implements connection.Observer.
func (r *Recorder) SendCompleted(_ string, res connection.SendResult, err error, elapsed time.Duration) {
	strategy := res.Strategy
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
		if strategy == "" {
			strategy = "none"
		}
	}
	r.sent.WithLabelValues(strategy, result).Inc()
	r.sendDuration.Observe(elapsed.Seconds())
}

// RegisterQueue exposes a queue depth read on every scrape.
func (r *Recorder) RegisterQueue(name string, depth func() float64) {
	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "queue_depth",
		Help:        "Items waiting in an internal queue",
		ConstLabels: prometheus.Labels{"queue": name},
	}, depth))
}
