// Package exporter serves Prometheus metrics and health endpoints.
package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veesix-networks/zconfig/pkg/component"
	"github.com/veesix-networks/zconfig/pkg/logger"
)

const DefaultAddress = ":9090"

type Options struct {
	Address  string
	Gatherer prometheus.Gatherer
	// Ready reports whether startup work is complete. Nil means always ready.
	Ready func() bool
}

type Component struct {
	*component.Base
	logger   *slog.Logger
	addr     string
	gatherer prometheus.Gatherer
	ready    func() bool

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
}

func New(opts Options) *Component {
	addr := opts.Address
	if addr == "" {
		addr = DefaultAddress
	}
	ready := opts.Ready
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Component{
		Base:     component.NewBase("exporter"),
		logger:   logger.Get(logger.Exporter),
		addr:     addr,
		gatherer: opts.Gatherer,
		ready:    ready,
	}
}

// Addr is the bound address once started, else the configured one.
func (c *Component) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener != nil {
		return c.listener.Addr().String()
	}
	return c.addr
}

func (c *Component) Handler() http.Handler {
	mux := http.NewServeMux()
	if c.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/healthz", HealthzHandler())
	mux.HandleFunc("/readyz", ReadyzHandler(c.ready))
	return mux
}

func (c *Component) Start(ctx context.Context) error {
	c.StartContext(ctx)

	ln, err := net.Listen("tcp", c.addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	c.mu.Lock()
	c.listener = ln
	c.server = srv
	c.mu.Unlock()

	c.logger.Info("Metrics HTTP server listening", "addr", ln.Addr().String())
	c.Go(func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("Metrics HTTP server error", "error", err)
		}
	})
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	c.logger.Info("Stopping metrics HTTP server")

	c.mu.RLock()
	srv := c.server
	c.mu.RUnlock()

	var err error
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
	}

	c.StopContext()
	return err
}

type healthResponse struct {
	Status string `json:"status"`
}

func HealthzHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusOK)
		json.NewEncoder(rw).Encode(healthResponse{Status: "ok"})
	}
}

func ReadyzHandler(ready func() bool) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		if ready() {
			rw.WriteHeader(http.StatusOK)
			json.NewEncoder(rw).Encode(healthResponse{Status: "ready"})
			return
		}
		rw.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(rw).Encode(healthResponse{Status: "not_ready"})
	}
}
