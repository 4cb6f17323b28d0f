// Package metrics holds the client's Prometheus collectors. They are
// registered on the default registry; cmd/manago exposes them over HTTP when
// a listen address is configured.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const _namespace = "manago"

var (
	// BytesReceived counts payload bytes read from sockets, by transport kind.
	BytesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: _namespace,
		Subsystem: "transport",
		Name:      "bytes_received_total",
	}, []string{"kind"})

	// BytesSent counts bytes written by Flush, by transport kind.
	BytesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: _namespace,
		Subsystem: "transport",
		Name:      "bytes_sent_total",
	}, []string{"kind"})

	// TransportErrors counts transitions into the transport error state.
	TransportErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: _namespace,
		Subsystem: "transport",
		Name:      "errors_total",
	}, []string{"kind"})

	// Packets counts dispatched messages by outcome: handled, unhandled,
	// corrupt or panic.
	Packets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: _namespace,
		Subsystem: "dispatch",
		Name:      "packets_total",
	}, []string{"outcome"})

	// StateChanges counts session state entries by state name.
	StateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: _namespace,
		Subsystem: "session",
		Name:      "state_changes_total",
	}, []string{"state"})

	// TickDuration observes the wall time of one main-loop tick.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: _namespace,
		Subsystem: "loop",
		Name:      "tick_seconds",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	})

	// PhaseDuration observes the wall time each tick phase takes.
	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: _namespace,
		Subsystem: "loop",
		Name:      "phase_seconds",
		Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05},
	}, []string{"phase"})

	// TickOverruns counts ticks that took longer than the tick interval.
	TickOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: _namespace,
		Subsystem: "loop",
		Name:      "overruns_total",
	})
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("指標服務已啟動", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
