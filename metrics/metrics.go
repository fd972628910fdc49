// Package metrics exposes publisher counters in the Prometheus text format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics of a publisher. A nil *Metrics discards all updates.
type Metrics struct {
	registry *prometheus.Registry

	messagesSent   prometheus.Counter
	messagesFailed prometheus.Counter
	lastSent       prometheus.Gauge
	state          prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_messages_sent_total",
			Help: "Telemetry messages acknowledged by the hub.",
		}),
		messagesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_messages_failed_total",
			Help: "Telemetry messages dropped after a failed send.",
		}),
		lastSent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_last_sent_timestamp_seconds",
			Help: "Unix time of the last acknowledged message.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_publisher_state",
			Help: "0=idle,1=connecting,2=running,3=shutting down,4=terminated",
		}),
	}
	m.registry.MustRegister(m.messagesSent, m.messagesFailed, m.lastSent, m.state)
	return m
}

func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
	m.lastSent.SetToCurrentTime()
}

func (m *Metrics) MessageFailed() {
	if m == nil {
		return
	}
	m.messagesFailed.Inc()
}

func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.state.Set(float64(state))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Msgf("Serving metrics on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Annotatef(err, "metrics server on %s", addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Trace(srv.Shutdown(shutdownCtx))
	}
}
