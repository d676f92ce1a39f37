package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics exposes counters the operator can scrape to watch a live
// engine: orders placed/cancelled and traded volume, both labelled by
// ticker so a multi-symbol deployment can be broken down per market. Each
// instance carries its own registry rather than using the global default,
// so a test can construct several without hitting duplicate-registration
// panics.
type Metrics struct {
	OrdersPlaced    *prometheus.CounterVec
	OrdersCancelled *prometheus.CounterVec
	TradesVolume    *prometheus.CounterVec

	registry *prometheus.Registry
	port     int
}

// NewMetrics constructs a fresh, independently registered set of
// collectors. Port 0 disables the HTTP endpoint; Serve becomes a no-op.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lobengine_orders_placed_total",
			Help: "Orders accepted by the engine, by ticker.",
		}, []string{"ticker"}),
		OrdersCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lobengine_orders_cancelled_total",
			Help: "Orders cancelled, by ticker.",
		}, []string{"ticker"}),
		TradesVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lobengine_trades_volume_total",
			Help: "Cumulative traded volume, by ticker.",
		}, []string{"ticker"}),
		registry: registry,
		port:     9090,
	}
	registry.MustRegister(m.OrdersPlaced, m.OrdersCancelled, m.TradesVolume)
	return m
}

// WithPort overrides the default metrics listen port.
func (m *Metrics) WithPort(port int) *Metrics {
	m.port = port
	return m
}

// Serve runs the /metrics HTTP endpoint until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context) error {
	if m.port == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", m.port), Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Info().Int("port", m.port).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
