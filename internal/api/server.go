// Package api exposes the HTTP surface: WU-compatible PWS push ingest, the
// watering-decision and weather endpoints, health, and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openirrigation/weatherd/internal/forecast"
	"github.com/openirrigation/weatherd/internal/hybrid"
	"github.com/openirrigation/weatherd/internal/obs"
)

type Server struct {
	store     *obs.Store
	composer  *hybrid.Composer
	providers *forecast.Registry
	port      string
}

func NewServer(store *obs.Store, composer *hybrid.Composer, providers *forecast.Registry, port string) *Server {
	return &Server{
		store:     store,
		composer:  composer,
		providers: providers,
		port:      port,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/weatherstation/updateweatherstation.php", s.handlePush)
	mux.HandleFunc("/api/watering", s.handleWatering)
	mux.HandleFunc("/api/weather", s.handleWeather)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
