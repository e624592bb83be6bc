package hybrid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/openirrigation/weatherd/internal/forecast"
	"github.com/openirrigation/weatherd/internal/models"
)

var (
	testCoords = models.GeoCoordinates{Lat: 39.74, Lon: -104.99}
	testNow    = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	today00    = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC).Unix()
)

type fixedZone struct{ loc *time.Location }

func (z fixedZone) Location(models.GeoCoordinates) *time.Location { return z.loc }

type fakeLocal struct {
	mu     sync.Mutex
	days   []models.DayBucket
	err    error
	cur    *models.Current
	curErr error
	calls  int
}

func (f *fakeLocal) WateringWindow(models.GeoCoordinates) ([]models.DayBucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.days, f.err
}

func (f *fakeLocal) Current(models.GeoCoordinates) (*models.Current, error) {
	return f.cur, f.curErr
}

type fakeAdapter struct {
	mu    sync.Mutex
	tag   string
	days  []models.ForecastDay
	err   error
	delay time.Duration
	calls int
}

func (f *fakeAdapter) Tag() string { return f.tag }

func (f *fakeAdapter) FetchDaily(ctx context.Context, _ models.GeoCoordinates) ([]models.ForecastDay, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.days, f.err
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// localHistory builds n day buckets, today first.
func localHistory(n int) []models.DayBucket {
	out := make([]models.DayBucket, n)
	for i := 0; i < n; i++ {
		out[i] = models.DayBucket{
			LocalMidnight: today00 - int64(i)*86400,
			MeanTempF:     55,
			MinTempF:      40,
			MaxTempF:      70,
			MeanHumidity:  50,
			MinHumidity:   30,
			MaxHumidity:   80,
			PrecipIn:      0.01,
			SampleCount:   24,
			Complete:      i > 0,
		}
	}
	return out
}

// forecastRun builds count days starting at today00+startOffsetDays, each
// stamped at secondsPastMidnight into its day.
func forecastRun(tag string, startOffsetDays, count int, secondsPastMidnight int64) []models.ForecastDay {
	out := make([]models.ForecastDay, count)
	for i := 0; i < count; i++ {
		out[i] = models.ForecastDay{
			LocalMidnight: today00 + int64(startOffsetDays+i)*86400 + secondsPastMidnight,
			MinTempF:      42,
			MaxTempF:      68,
			PrecipIn:      0,
			Provider:      tag,
		}
	}
	return out
}

func newTestComposer(local *fakeLocal, adapter *fakeAdapter) *Composer {
	reg := forecast.NewRegistry()
	reg.Register(adapter)
	c := New(local, reg, fixedZone{time.UTC})
	c.Now = func() time.Time { return testNow }
	return c
}

func checkSeriesInvariants(t *testing.T, series models.CombinedSeries) {
	t.Helper()
	seen := make(map[string]bool)
	for i, e := range series {
		if i > 0 && e.LocalMidnight >= series[i-1].LocalMidnight {
			t.Fatalf("entry %d: epochs not strictly decreasing", i)
		}
		day := time.Unix(e.LocalMidnight, 0).UTC().Format("2006-01-02")
		if seen[day] {
			t.Fatalf("duplicate calendar day %s", day)
		}
		seen[day] = true
	}
}

func TestComposeHappyPath(t *testing.T) {
	t.Parallel()
	local := &fakeLocal{days: localHistory(8)}
	adapter := &fakeAdapter{tag: "openmeteo", days: forecastRun("openmeteo", 1, 7, 0)}
	c := newTestComposer(local, adapter)

	series, err := c.ViewForAdjustment(context.Background(), testCoords, "openmeteo")
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 15 {
		t.Fatalf("got %d entries, want 15", len(series))
	}
	first, last := series[0], series[len(series)-1]
	if first.Source != models.SourceForecast || first.LocalMidnight != today00+7*86400 {
		t.Errorf("first entry = %s@%d, want forecast today+7", first.Source, first.LocalMidnight)
	}
	if last.Source != models.SourceLocal || last.LocalMidnight != today00-7*86400 {
		t.Errorf("last entry = %s@%d, want local today-7", last.Source, last.LocalMidnight)
	}
	checkSeriesInvariants(t, series)
}

func TestComposeFiltersForecastOverlapWithToday(t *testing.T) {
	t.Parallel()
	local := &fakeLocal{days: localHistory(8)}
	// Upstream includes today plus six future days.
	adapter := &fakeAdapter{tag: "openmeteo", days: forecastRun("openmeteo", 0, 7, 0)}
	c := newTestComposer(local, adapter)

	series, err := c.ViewForAdjustment(context.Background(), testCoords, "openmeteo")
	if err != nil {
		t.Fatal(err)
	}

	forecastCount := 0
	for _, e := range series {
		if e.Source == models.SourceForecast {
			forecastCount++
			if e.LocalMidnight <= today00 {
				t.Errorf("forecast entry at %d not strictly after today", e.LocalMidnight)
			}
		}
	}
	if forecastCount != 6 {
		t.Errorf("got %d forecast entries, want 6 after dropping today", forecastCount)
	}
	checkSeriesInvariants(t, series)
}

func TestComposeLocalOnlyWhenForecastDown(t *testing.T) {
	t.Parallel()
	local := &fakeLocal{days: localHistory(8)}
	adapter := &fakeAdapter{tag: "openmeteo", err: fmt.Errorf("%w: status 503", models.ErrUpstreamTransient)}
	c := newTestComposer(local, adapter)

	series, err := c.ViewForAdjustment(context.Background(), testCoords, "openmeteo")
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 8 {
		t.Fatalf("got %d entries, want 8 local-only", len(series))
	}
	for _, e := range series {
		if e.Source != models.SourceLocal {
			t.Errorf("unexpected %s entry in local-only series", e.Source)
		}
	}
}

func TestComposeForecastOnlyWhenLocalDown(t *testing.T) {
	t.Parallel()
	local := &fakeLocal{err: fmt.Errorf("%w: cold start", models.ErrInsufficientData)}
	adapter := &fakeAdapter{tag: "openmeteo", days: forecastRun("openmeteo", 1, 7, 0)}
	c := newTestComposer(local, adapter)

	series, err := c.ViewForAdjustment(context.Background(), testCoords, "openmeteo")
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 7 {
		t.Fatalf("got %d entries, want 7 forecast-only", len(series))
	}
}

func TestComposeBothDownFails(t *testing.T) {
	t.Parallel()
	local := &fakeLocal{err: fmt.Errorf("%w: cold start", models.ErrInsufficientData)}
	adapter := &fakeAdapter{tag: "openmeteo", err: fmt.Errorf("%w: down", models.ErrUpstreamTransient)}
	c := newTestComposer(local, adapter)

	_, err := c.ViewForAdjustment(context.Background(), testCoords, "openmeteo")
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("got %v, want ErrInsufficientData", err)
	}

	// No negative caching: once local recovers the next call succeeds.
	local.mu.Lock()
	local.days, local.err = localHistory(8), nil
	local.mu.Unlock()

	series, err := c.ViewForAdjustment(context.Background(), testCoords, "openmeteo")
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 8 {
		t.Fatalf("got %d entries after recovery, want 8", len(series))
	}
}

func TestComposeNonMidnightForecastMarks(t *testing.T) {
	t.Parallel()
	local := &fakeLocal{days: localHistory(8)}
	// Upstream stamps days at 06:00, today through today+6.
	adapter := &fakeAdapter{tag: "openmeteo", days: forecastRun("openmeteo", 0, 7, 6*3600)}
	c := newTestComposer(local, adapter)

	series, err := c.ViewForAdjustment(context.Background(), testCoords, "openmeteo")
	if err != nil {
		t.Fatal(err)
	}

	forecastCount := 0
	for _, e := range series {
		if e.Source == models.SourceForecast {
			forecastCount++
			day := time.Unix(e.LocalMidnight, 0).UTC().YearDay()
			todayDay := testNow.YearDay()
			if day <= todayDay {
				t.Errorf("forecast entry on local day %d not after today %d", day, todayDay)
			}
		}
	}
	if forecastCount != 6 {
		t.Errorf("got %d forecast entries, want 6 by calendar-day filtering", forecastCount)
	}
}

func TestCacheFreshHitSkipsRecompose(t *testing.T) {
	t.Parallel()
	local := &fakeLocal{days: localHistory(8)}
	adapter := &fakeAdapter{tag: "openmeteo", days: forecastRun("openmeteo", 1, 7, 0)}
	c := newTestComposer(local, adapter)

	now := testNow
	c.Now = func() time.Time { return now }

	first, err := c.ViewForAdjustment(context.Background(), testCoords, "openmeteo")
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.ViewForAdjustment(context.Background(), testCoords, "openmeteo")
	if err != nil {
		t.Fatal(err)
	}
	if adapter.callCount() != 1 {
		t.Errorf("adapter called %d times within TTL, want 1", adapter.callCount())
	}
	if &first[0] != &second[0] {
		t.Error("successive calls within TTL should share the cached series")
	}

	now = now.Add(DefaultTTL + time.Second)
	if _, err := c.ViewForAdjustment(context.Background(), testCoords, "openmeteo"); err != nil {
		t.Fatal(err)
	}
	if adapter.callCount() != 2 {
		t.Errorf("adapter called %d times after TTL expiry, want 2", adapter.callCount())
	}
}

func TestDegradedResultCachedBriefly(t *testing.T) {
	t.Parallel()
	local := &fakeLocal{days: localHistory(8)}
	adapter := &fakeAdapter{tag: "openmeteo", err: fmt.Errorf("%w: down", models.ErrUpstreamTransient)}
	c := newTestComposer(local, adapter)

	now := testNow
	c.Now = func() time.Time { return now }

	if _, err := c.ViewForAdjustment(context.Background(), testCoords, "openmeteo"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ViewForAdjustment(context.Background(), testCoords, "openmeteo"); err != nil {
		t.Fatal(err)
	}
	if adapter.callCount() != 1 {
		t.Errorf("adapter called %d times within degraded TTL, want 1", adapter.callCount())
	}

	// Past the shortened TTL the upstream gets another chance.
	now = now.Add(DegradedTTL + time.Second)
	adapter.mu.Lock()
	adapter.days, adapter.err = forecastRun("openmeteo", 1, 7, 0), nil
	adapter.mu.Unlock()

	series, err := c.ViewForAdjustment(context.Background(), testCoords, "openmeteo")
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 15 {
		t.Fatalf("got %d entries after upstream recovery, want 15", len(series))
	}
}

func TestInvalidProvider(t *testing.T) {
	t.Parallel()
	c := newTestComposer(&fakeLocal{days: localHistory(8)}, &fakeAdapter{tag: "openmeteo"})

	_, err := c.ViewForAdjustment(context.Background(), testCoords, "darksky")
	if !errors.Is(err, models.ErrInvalidProvider) {
		t.Fatalf("got %v, want ErrInvalidProvider", err)
	}
}

func TestSingleFlightDeduplicatesConcurrentReaders(t *testing.T) {
	t.Parallel()
	local := &fakeLocal{days: localHistory(8)}
	adapter := &fakeAdapter{tag: "openmeteo", days: forecastRun("openmeteo", 1, 7, 0), delay: 50 * time.Millisecond}
	c := newTestComposer(local, adapter)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.ViewForAdjustment(context.Background(), testCoords, "openmeteo"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if adapter.callCount() != 1 {
		t.Errorf("adapter called %d times for concurrent readers, want 1", adapter.callCount())
	}
}

func TestCancelledCallerLeavesCacheValid(t *testing.T) {
	t.Parallel()
	local := &fakeLocal{days: localHistory(8)}
	adapter := &fakeAdapter{tag: "openmeteo", days: forecastRun("openmeteo", 1, 7, 0), delay: 100 * time.Millisecond}
	c := newTestComposer(local, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := c.ViewForAdjustment(ctx, testCoords, "openmeteo"); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}

	// The detached flight finishes and populates the cache for later callers.
	time.Sleep(200 * time.Millisecond)
	series, err := c.ViewForAdjustment(context.Background(), testCoords, "openmeteo")
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 15 {
		t.Fatalf("got %d entries from completed flight, want 15", len(series))
	}
	if adapter.callCount() != 1 {
		t.Errorf("adapter called %d times, want 1 (cache filled by cancelled caller's flight)", adapter.callCount())
	}
}

func TestViewForRainRestriction(t *testing.T) {
	t.Parallel()
	temp := 72
	local := &fakeLocal{
		days: localHistory(8),
		cur:  &models.Current{Timestamp: testNow.Unix(), TempF: &temp, Precip24In: 0.2, Raining: true},
	}
	adapter := &fakeAdapter{tag: "openmeteo", days: forecastRun("openmeteo", 1, 7, 0)}
	c := newTestComposer(local, adapter)

	current, tail, err := c.ViewForRainRestriction(context.Background(), testCoords, "openmeteo")
	if err != nil {
		t.Fatal(err)
	}
	if !current.Raining {
		t.Error("current lost on the way through")
	}
	if len(tail) != 7 {
		t.Fatalf("got %d forecast-tail entries, want 7", len(tail))
	}
	for _, e := range tail {
		if e.Source != models.SourceForecast {
			t.Errorf("local entry %d leaked into forecast tail", e.LocalMidnight)
		}
	}
}

func TestViewForRainRestrictionDegradesWithoutSeries(t *testing.T) {
	t.Parallel()
	temp := 65
	local := &fakeLocal{
		err: fmt.Errorf("%w: cold start", models.ErrInsufficientData),
		cur: &models.Current{Timestamp: testNow.Unix(), TempF: &temp},
	}
	adapter := &fakeAdapter{tag: "openmeteo", err: fmt.Errorf("%w: down", models.ErrUpstreamTransient)}
	c := newTestComposer(local, adapter)

	current, tail, err := c.ViewForRainRestriction(context.Background(), testCoords, "openmeteo")
	if err != nil {
		t.Fatal(err)
	}
	if current == nil || tail != nil {
		t.Error("expected current-only degradation when compose fails")
	}
}

func TestViewForRainRestrictionPropagatesCurrentFailure(t *testing.T) {
	t.Parallel()
	local := &fakeLocal{curErr: fmt.Errorf("%w: no observations in the last 24h", models.ErrInsufficientData)}
	c := newTestComposer(local, &fakeAdapter{tag: "openmeteo"})

	_, _, err := c.ViewForRainRestriction(context.Background(), testCoords, "openmeteo")
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("got %v, want ErrInsufficientData", err)
	}
}
