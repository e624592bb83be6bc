// Package timezone maps request coordinates to IANA zones and local
// calendar-day boundaries. All day arithmetic in the engine goes through
// here so boundaries are computed in the caller's zone, never the server's.
package timezone

import (
	"log"
	"sync"
	"time"
	_ "time/tzdata" // zone database fallback for hosts without one

	"github.com/ringsaturn/tzf"

	"github.com/openirrigation/weatherd/internal/models"
)

// Day is a local calendar date, comparable across zones by value.
type Day struct {
	Year  int
	Month time.Month
	Dom   int
}

// After reports whether d falls on a later calendar date than o.
func (d Day) After(o Day) bool {
	if d.Year != o.Year {
		return d.Year > o.Year
	}
	if d.Month != o.Month {
		return d.Month > o.Month
	}
	return d.Dom > o.Dom
}

// DayOf returns the calendar date of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Dom: d}
}

// Midnight returns 00:00:00 of t's calendar date in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Resolver resolves coordinates to a *time.Location via an embedded lat/lon
// polygon index. Lookups are stable per coordinate pair; coordinates outside
// any zone fall back to UTC.
type Resolver struct {
	finder tzf.F

	mu   sync.Mutex
	locs map[string]*time.Location
}

func NewResolver() (*Resolver, error) {
	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, err
	}
	return &Resolver{
		finder: finder,
		locs:   make(map[string]*time.Location),
	}, nil
}

// Location returns the IANA zone covering c, or UTC when none does.
func (r *Resolver) Location(c models.GeoCoordinates) *time.Location {
	name := r.finder.GetTimezoneName(c.Lon, c.Lat)
	if name == "" {
		return time.UTC
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if loc, ok := r.locs[name]; ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("timezone: load %q: %v, falling back to UTC", name, err)
		loc = time.UTC
	}
	r.locs[name] = loc
	return loc
}

// LocalMidnight returns 00:00:00 of instant's calendar date in c's zone.
func (r *Resolver) LocalMidnight(c models.GeoCoordinates, instant time.Time) time.Time {
	return Midnight(instant, r.Location(c))
}

// LocalCalendarDay returns instant's calendar date in c's zone.
func (r *Resolver) LocalCalendarDay(c models.GeoCoordinates, instant time.Time) Day {
	return DayOf(instant, r.Location(c))
}
