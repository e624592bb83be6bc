// Package aggregate rolls raw PWS samples up into per-local-day metrics and
// surfaces the two read views the composer and rain-delay checks consume.
package aggregate

import (
	"fmt"
	"math"
	"time"

	"github.com/openirrigation/weatherd/internal/models"
	"github.com/openirrigation/weatherd/internal/obs"
	"github.com/openirrigation/weatherd/internal/timezone"
)

// minSpan is the shortest stretch of wall time the store must cover before
// any day rollup is considered meaningful.
const minSpan = 23 * time.Hour

// ZoneResolver maps coordinates to the zone day boundaries are computed in.
type ZoneResolver interface {
	Location(models.GeoCoordinates) *time.Location
}

// Provider serves aggregated views over the observation store.
type Provider struct {
	store *obs.Store
	zones ZoneResolver

	// Now is the clock; replaceable in tests.
	Now func() time.Time
}

func New(store *obs.Store, zones ZoneResolver) *Provider {
	return &Provider{
		store: store,
		zones: zones,
		Now:   time.Now,
	}
}

// WateringWindow returns up to 8 day buckets (7 past days plus a partial
// today) in the zone resolved from coords, newest first.
//
// Yesterday is mandatory: Zimmerman-style consumers need contiguous recent
// days, so a gap at i=1 fails the whole window while a gap further back just
// truncates it.
func (p *Provider) WateringWindow(coords models.GeoCoordinates) ([]models.DayBucket, error) {
	samples := p.store.Snapshot()
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: %d samples stored", models.ErrInsufficientData, len(samples))
	}
	span := time.Duration(samples[len(samples)-1].Timestamp-samples[0].Timestamp) * time.Second
	if span < minSpan {
		return nil, fmt.Errorf("%w: only %s of samples, need %s", models.ErrInsufficientData, span, minSpan)
	}

	loc := p.zones.Location(coords)
	now := p.Now()
	today00 := timezone.Midnight(now, loc)

	var out []models.DayBucket

	if b, ok := buildBucket(samples, today00.Unix(), now.Unix()+1); ok {
		b.Complete = now.Unix()-today00.Unix() >= int64(minSpan/time.Second)
		out = append(out, b)
	}

	for i := 1; i <= 7; i++ {
		start := today00.AddDate(0, 0, -i)
		end := today00.AddDate(0, 0, -(i - 1))
		b, ok := buildBucket(samples, start.Unix(), end.Unix())
		if !ok {
			if i == 1 {
				return nil, fmt.Errorf("%w: no complete bucket for %s", models.ErrInsufficientData, models.DayString(start.Unix(), loc))
			}
			break
		}
		b.Complete = true
		out = append(out, b)
	}

	return out, nil
}

// buildBucket rolls the samples inside [start, end) into one bucket. Per-field
// averages ignore absent values and values outside the plausibility bounds,
// so a reading flagged at ingest cannot push a bucket outside its invariant
// ranges. Solar and wind are optional and their absence does not disqualify
// the day. The bucket is emitted only when temp and humidity each have at
// least one contributing sample and all four min/max values are finite.
func buildBucket(samples []models.Observation, start, end int64) (models.DayBucket, bool) {
	var (
		tempSum, humSum, windSum, solarSum float64
		tempN, humN, windN, solarN, total  int
		precip                             float64
	)
	minT, maxT := math.Inf(1), math.Inf(-1)
	minH, maxH := math.Inf(1), math.Inf(-1)

	for _, s := range samples {
		if s.Timestamp < start || s.Timestamp >= end {
			continue
		}
		total++
		if s.TempF != nil && obs.TempPlausible(*s.TempF) {
			tempSum += *s.TempF
			tempN++
			minT = math.Min(minT, *s.TempF)
			maxT = math.Max(maxT, *s.TempF)
		}
		if s.Humidity != nil && obs.HumidityPlausible(*s.Humidity) {
			humSum += *s.Humidity
			humN++
			minH = math.Min(minH, *s.Humidity)
			maxH = math.Max(maxH, *s.Humidity)
		}
		if s.WindMPH != nil && obs.WindPlausible(*s.WindMPH) {
			windSum += *s.WindMPH
			windN++
		}
		if s.Solar != nil && *s.Solar >= 0 {
			solarSum += *s.Solar
			solarN++
		}
		if s.IntervalRainIn != nil && *s.IntervalRainIn >= 0 {
			precip += *s.IntervalRainIn
		}
	}

	if tempN == 0 || humN == 0 {
		return models.DayBucket{}, false
	}
	if math.IsInf(minT, 0) || math.IsInf(maxT, 0) || math.IsInf(minH, 0) || math.IsInf(maxH, 0) {
		return models.DayBucket{}, false
	}

	b := models.DayBucket{
		LocalMidnight: start,
		MeanTempF:     tempSum / float64(tempN),
		MinTempF:      minT,
		MaxTempF:      maxT,
		MeanHumidity:  humSum / float64(humN),
		MinHumidity:   minH,
		MaxHumidity:   maxH,
		PrecipIn:      precip,
		SampleCount:   total,
	}
	if windN > 0 {
		w := windSum / float64(windN)
		b.WindMPH = &w
	}
	if solarN > 0 {
		sr := solarSum / float64(solarN)
		b.Solar = &sr
	}
	return b, true
}
