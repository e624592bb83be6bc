package models

import (
	"fmt"
	"time"
)

// GeoCoordinates identifies the location a request is about. Day boundaries
// and time zones are always derived from these, never from server-local time.
type GeoCoordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Key returns a stable cache key for the coordinate pair, rounded to ~11m.
func (c GeoCoordinates) Key() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

// Observation is a single PWS sample as pushed by the station. All sensor
// fields are optional; a nil pointer means the sensor did not report.
// Units are canonical: °F, percent, mph, kWh/m²/day, inches.
type Observation struct {
	Timestamp      int64    `json:"timestamp"` // seconds since epoch, UTC
	TempF          *float64 `json:"tempF,omitempty"`
	Humidity       *float64 `json:"humidity,omitempty"`
	WindMPH        *float64 `json:"windMph,omitempty"`
	Solar          *float64 `json:"solar,omitempty"` // kWh/m²/day
	DailyRainIn    *float64 `json:"dailyRainIn,omitempty"`
	RainRateIn     *float64 `json:"rainRateIn,omitempty"` // in/hr, from the rainin sensor
	IntervalRainIn *float64 `json:"intervalRainIn,omitempty"`
	QualityFlags   []string `json:"qualityFlags,omitempty"`
}

// DayBucket is the rollup of one local calendar day of observations. Buckets
// are derived per read and never stored.
type DayBucket struct {
	LocalMidnight int64
	MeanTempF     float64
	MinTempF      float64
	MaxTempF      float64
	MeanHumidity  float64
	MinHumidity   float64
	MaxHumidity   float64
	PrecipIn      float64
	Solar         *float64 // kWh/m²/day, mean
	WindMPH       *float64 // mph, mean
	SampleCount   int
	Complete      bool // window spans at least 23h of wall time
}

// ForecastDay is one future calendar day in canonical units, as produced by
// a forecast adapter.
type ForecastDay struct {
	LocalMidnight int64
	MinTempF      float64
	MaxTempF      float64
	PrecipIn      float64
	Humidity      *float64
	Solar         *float64
	WindMPH       *float64
	Provider      string
}

// Series entry sources.
const (
	SourceLocal    = "local"
	SourceForecast = "forecast"
)

// SeriesEntry is the union shape of DayBucket and ForecastDay inside a
// CombinedSeries. Fields only one source can produce are pointers.
type SeriesEntry struct {
	LocalMidnight int64    `json:"localMidnightEpoch"`
	Source        string   `json:"source"`
	MinTempF      float64  `json:"minTempF"`
	MaxTempF      float64  `json:"maxTempF"`
	MeanTempF     *float64 `json:"meanTempF,omitempty"`
	MeanHumidity  *float64 `json:"meanHumidity,omitempty"`
	MinHumidity   *float64 `json:"minHumidity,omitempty"`
	MaxHumidity   *float64 `json:"maxHumidity,omitempty"`
	PrecipIn      float64  `json:"precipIn"`
	Solar         *float64 `json:"solar,omitempty"`
	WindMPH       *float64 `json:"windMph,omitempty"`
	SampleCount   int      `json:"sampleCount,omitempty"`
	Provider      string   `json:"provider,omitempty"`
}

// CombinedSeries is measured past + today followed by forecast future,
// ordered newest-first by LocalMidnight (strictly decreasing).
type CombinedSeries []SeriesEntry

// Entry converts a local day bucket into its series shape.
func (b DayBucket) Entry() SeriesEntry {
	meanT, meanH := b.MeanTempF, b.MeanHumidity
	minH, maxH := b.MinHumidity, b.MaxHumidity
	return SeriesEntry{
		LocalMidnight: b.LocalMidnight,
		Source:        SourceLocal,
		MinTempF:      b.MinTempF,
		MaxTempF:      b.MaxTempF,
		MeanTempF:     &meanT,
		MeanHumidity:  &meanH,
		MinHumidity:   &minH,
		MaxHumidity:   &maxH,
		PrecipIn:      b.PrecipIn,
		Solar:         b.Solar,
		WindMPH:       b.WindMPH,
		SampleCount:   b.SampleCount,
	}
}

// Entry converts a forecast day into its series shape.
func (f ForecastDay) Entry() SeriesEntry {
	return SeriesEntry{
		LocalMidnight: f.LocalMidnight,
		Source:        SourceForecast,
		MinTempF:      f.MinTempF,
		MaxTempF:      f.MaxTempF,
		MeanHumidity:  f.Humidity,
		PrecipIn:      f.PrecipIn,
		Solar:         f.Solar,
		WindMPH:       f.WindMPH,
		Provider:      f.Provider,
	}
}

// Current is the instantaneous local view over the last 24h of samples,
// consumed by rain-delay checks.
type Current struct {
	Timestamp  int64    `json:"timestamp"`
	TempF      *int     `json:"tempF,omitempty"`    // floored
	Humidity   *int     `json:"humidity,omitempty"` // floored
	WindMPH    *float64 `json:"windMph,omitempty"`  // one decimal
	Precip24In float64  `json:"precip24in"`
	Raining    bool     `json:"raining"`
}

// SensorAbsent is the sentinel some station firmwares report for a sensor
// that is not installed.
const SensorAbsent = -9999.0

// DayString formats an epoch as its local calendar date, for log lines.
func DayString(epoch int64, loc *time.Location) string {
	return time.Unix(epoch, 0).In(loc).Format("2006-01-02")
}
