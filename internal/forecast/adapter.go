// Package forecast reduces heterogeneous upstream providers to a single
// daily shape in canonical units (°F, inches, mph, kWh/m²/day). One adapter
// exists per upstream; the composer selects one through the registry by tag.
package forecast

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/openirrigation/weatherd/internal/httputil"
	"github.com/openirrigation/weatherd/internal/metrics"
	"github.com/openirrigation/weatherd/internal/models"
)

// DefaultProvider is used when a request carries no provider tag. Open-Meteo
// needs no API key, so it is always registered.
const DefaultProvider = "openmeteo"

// Adapter converts one upstream's wire format into canonical forecast days.
// FetchDaily returns at least the next 7 calendar days starting no earlier
// than the provider's today, with LocalMidnight set to the local midnight of
// the day each entry describes.
type Adapter interface {
	Tag() string
	FetchDaily(ctx context.Context, coords models.GeoCoordinates) ([]models.ForecastDay, error)
}

// ZoneResolver maps coordinates to the zone forecast days are anchored in.
type ZoneResolver interface {
	Location(models.GeoCoordinates) *time.Location
}

// Registry is the table of available adapters, keyed by provider tag.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Tag()] = a
}

// Lookup resolves a provider tag, defaulting the empty tag.
func (r *Registry) Lookup(tag string) (Adapter, error) {
	if tag == "" {
		tag = DefaultProvider
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidProvider, tag)
	}
	return a, nil
}

// Tags lists the registered provider tags, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// fetchJSON performs one upstream GET with the shared call budget. Rate
// limiting and 5xx are retried with short exponential backoff inside the
// budget; every other failure is permanent for this call and surfaces as
// UpstreamTransient, to be retried at the next cache miss.
func fetchJSON(ctx context.Context, client *http.Client, provider, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, httputil.DefaultTimeout)
	defer cancel()

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", models.ErrUpstreamTransient, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d", models.ErrUpstreamTransient, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("%w: status %d: %s", models.ErrUpstreamTransient, resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: read body: %v", models.ErrUpstreamTransient, err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 8 * time.Second

	start := time.Now()
	err := backoff.Retry(operation, backoff.WithContext(bo, ctx))
	metrics.UpstreamLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamCallsTotal.WithLabelValues(provider, "error").Inc()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrUpstreamTransient, ctx.Err())
		}
		return nil, err
	}
	metrics.UpstreamCallsTotal.WithLabelValues(provider, "ok").Inc()
	return body, nil
}
