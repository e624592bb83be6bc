// Package hybrid composes measured local history with upstream forecast days
// into the authoritative CombinedSeries, and caches it for short-TTL reuse by
// the adjustment and rain-restriction consumers.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openirrigation/weatherd/internal/forecast"
	"github.com/openirrigation/weatherd/internal/metrics"
	"github.com/openirrigation/weatherd/internal/models"
	"github.com/openirrigation/weatherd/internal/timezone"
)

const (
	// DefaultTTL is the cache lifetime of a fully combined series.
	DefaultTTL = 5 * time.Minute

	// DegradedTTL is the shorter lifetime used when one source was down, so
	// a recovered upstream shows up quickly instead of after a full TTL.
	DegradedTTL = 1 * time.Minute
)

// LocalSource is the measured side of a composition.
type LocalSource interface {
	WateringWindow(models.GeoCoordinates) ([]models.DayBucket, error)
	Current(models.GeoCoordinates) (*models.Current, error)
}

// ZoneResolver maps coordinates to the zone calendar days are compared in.
type ZoneResolver interface {
	Location(models.GeoCoordinates) *time.Location
}

// cachedView is one composed series with its freshness window. Owned
// exclusively by the Composer.
type cachedView struct {
	series    models.CombinedSeries
	coords    models.GeoCoordinates
	createdAt time.Time
	ttl       time.Duration
}

// Composer owns the per-(coords, provider) cache of combined series.
// Concurrent readers of the same key share a single composition flight.
type Composer struct {
	local     LocalSource
	providers *forecast.Registry
	zones     ZoneResolver

	// Now is the clock; replaceable in tests.
	Now func() time.Time

	mu    sync.Mutex
	cache map[string]*cachedView
	group singleflight.Group
}

func New(local LocalSource, providers *forecast.Registry, zones ZoneResolver) *Composer {
	return &Composer{
		local:     local,
		providers: providers,
		zones:     zones,
		Now:       time.Now,
		cache:     make(map[string]*cachedView),
	}
}

// ViewForAdjustment returns the cached combined series for (coords, provider),
// composing when the entry is stale or missing. Newest-first.
func (c *Composer) ViewForAdjustment(ctx context.Context, coords models.GeoCoordinates, providerTag string) (models.CombinedSeries, error) {
	adapter, err := c.providers.Lookup(providerTag)
	if err != nil {
		return nil, err
	}
	key := coords.Key() + "|" + adapter.Tag()

	if series, ok := c.lookup(key); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return series, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	// The flight runs detached from the initiating request: a caller that
	// goes away must not abort a composition other callers are awaiting,
	// and a finished compose leaves the cache valid either way. Upstream
	// timeouts inside the adapters bound the flight's lifetime.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.compose(context.WithoutCancel(ctx), key, coords, adapter)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(models.CombinedSeries), nil
	}
}

// ViewForRainRestriction returns the instantaneous local rollup plus the
// forecast-day tail of the cached series, composing transparently when no
// fresh series exists. A failed compose degrades to current-only; only an
// unknown provider tag is an error once current is available.
func (c *Composer) ViewForRainRestriction(ctx context.Context, coords models.GeoCoordinates, providerTag string) (*models.Current, models.CombinedSeries, error) {
	current, err := c.local.Current(coords)
	if err != nil {
		return nil, nil, err
	}

	series, err := c.ViewForAdjustment(ctx, coords, providerTag)
	if err != nil {
		if errors.Is(err, models.ErrInvalidProvider) {
			return nil, nil, err
		}
		log.Printf("composer: rain-restriction compose: %v", err)
		return current, nil, nil
	}

	var tail models.CombinedSeries
	for _, e := range series {
		if e.Source == models.SourceForecast {
			tail = append(tail, e)
		}
	}
	return current, tail, nil
}

// lookup returns the cached series when fresh. A stale entry is removed so
// the state machine matches compose-failure semantics: after a failure the
// entry is absent, never negatively cached.
func (c *Composer) lookup(key string) (models.CombinedSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if c.Now().Sub(v.createdAt) > v.ttl {
		delete(c.cache, key)
		return nil, false
	}
	return v.series, true
}

// compose runs the full composition for one key: local watering window plus
// filtered forecast days, degraded to whichever source is available.
func (c *Composer) compose(ctx context.Context, key string, coords models.GeoCoordinates, adapter forecast.Adapter) (models.CombinedSeries, error) {
	loc := c.zones.Location(coords)
	now := c.Now()
	today := timezone.DayOf(now, loc)

	localDays, lerr := c.local.WateringWindow(coords)
	if lerr != nil {
		log.Printf("composer: local window for %s: %v", coords.Key(), lerr)
	}
	localOK := lerr == nil && len(localDays) > 0

	forecastDays, ferr := adapter.FetchDaily(ctx, coords)
	if ferr != nil {
		log.Printf("composer: forecast %s for %s: %v", adapter.Tag(), coords.Key(), ferr)
	}
	forecastOK := ferr == nil && len(forecastDays) > 0

	if !localOK && !forecastOK {
		metrics.CompositionsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: local: %v; forecast %s: %v", models.ErrInsufficientData, lerr, adapter.Tag(), ferr)
	}

	// Keep only forecast days whose local calendar date is strictly after
	// both today and the latest measured day. Comparing (year, month, day)
	// tuples rather than raw epochs also handles upstreams that stamp days
	// at non-midnight marks.
	cutoffDay := today
	if localOK {
		latest := timezone.DayOf(time.Unix(localDays[0].LocalMidnight, 0), loc)
		if latest.After(cutoffDay) {
			cutoffDay = latest
		}
	}

	var series models.CombinedSeries
	for _, b := range localDays {
		series = append(series, b.Entry())
	}
	if forecastOK {
		for _, d := range forecastDays {
			if timezone.DayOf(time.Unix(d.LocalMidnight, 0), loc).After(cutoffDay) {
				series = append(series, d.Entry())
			}
		}
	}
	if len(series) == 0 {
		metrics.CompositionsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: no usable days after overlap filtering", models.ErrInsufficientData)
	}

	sort.Slice(series, func(i, j int) bool {
		return series[i].LocalMidnight > series[j].LocalMidnight
	})

	result := "combined"
	ttl := DefaultTTL
	switch {
	case !forecastOK:
		result = "local_only"
		ttl = DegradedTTL
	case !localOK:
		result = "forecast_only"
		ttl = DegradedTTL
	}
	metrics.CompositionsTotal.WithLabelValues(result).Inc()

	c.mu.Lock()
	c.cache[key] = &cachedView{
		series:    series,
		coords:    coords,
		createdAt: now,
		ttl:       ttl,
	}
	c.mu.Unlock()

	return series, nil
}
