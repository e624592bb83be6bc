// Package obs holds the in-memory observation store: a bounded, time-ordered
// sequence of PWS samples shared between the push-ingest handlers, the
// aggregation readers, and the persistence worker.
package obs

import (
	"log"
	"sync"
	"time"

	"github.com/openirrigation/weatherd/internal/metrics"
	"github.com/openirrigation/weatherd/internal/models"
)

// Retention is how long a sample stays in the store before trim drops it.
const Retention = 8 * 24 * time.Hour

// Store is the process-wide observation sequence. Samples are kept oldest
// first and appended at the tail; readers get an immutable slice view, so
// aggregation never races ingest.
type Store struct {
	mu            sync.Mutex
	samples       []models.Observation
	lastRainCount float64
	lastRainEpoch int64
}

func NewStore() *Store {
	return &Store{}
}

// Ingest appends a sample and computes its rain-gauge delta. The dailyRain
// counter resets at local midnight or on station power-cycle; a reading
// below the previous one means the counter restarted and the reading itself
// is the interval amount.
//
// Ingest also drops samples that have aged past the retention window
// relative to the incoming timestamp, so the store stays bounded even when
// no persistence worker is running.
func (s *Store) Ingest(o models.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trimLocked(o.Timestamp - int64(Retention/time.Second))

	if o.DailyRainIn != nil {
		daily := *o.DailyRainIn
		var delta float64
		if daily < s.lastRainCount {
			delta = daily
		} else {
			delta = daily - s.lastRainCount
		}
		o.IntervalRainIn = &delta
		s.lastRainCount = daily
	}
	if o.RainRateIn != nil && *o.RainRateIn > 0 {
		s.lastRainEpoch = o.Timestamp
	}

	// Full slice expression: a later append can never write into a slice a
	// reader obtained from Snapshot.
	s.samples = append(s.samples[:len(s.samples):len(s.samples)], o)
	metrics.ObservationsIngested.Inc()
	for _, f := range o.QualityFlags {
		metrics.ObservationsFlagged.WithLabelValues(f).Inc()
	}
}

// Snapshot returns a read-only view of the store, oldest first. The slice is
// immutable: subsequent ingests reallocate rather than write in place.
func (s *Store) Snapshot() []models.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples[:len(s.samples):len(s.samples)]
}

// Trim drops samples older than the retention window.
func (s *Store) Trim(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.trimLocked(now.Add(-Retention).Unix()); n > 0 {
		log.Printf("store: trimmed %d observations older than %s", n, Retention)
	}
}

// trimLocked drops samples with timestamps before cutoff and reports how
// many went. Callers hold s.mu. The copy preserves the snapshot contract:
// slices handed out earlier are never written through.
func (s *Store) trimLocked(cutoff int64) int {
	i := 0
	for i < len(s.samples) && s.samples[i].Timestamp < cutoff {
		i++
	}
	if i == 0 {
		return 0
	}
	kept := make([]models.Observation, len(s.samples)-i)
	copy(kept, s.samples[i:])
	s.samples = kept
	return i
}

// LastRainEpoch reports when the rain-rate sensor last read above zero.
func (s *Store) LastRainEpoch() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRainEpoch
}

// Len reports the current number of stored samples.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// Newest returns the most recent sample, if any.
func (s *Store) Newest() (models.Observation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return models.Observation{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// replaceAll swaps in a restored sample set and rebuilds the rain-counter
// state from the newest sample.
func (s *Store) replaceAll(samples []models.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = samples
	s.lastRainCount = 0
	if len(samples) > 0 {
		if dr := samples[len(samples)-1].DailyRainIn; dr != nil {
			s.lastRainCount = *dr
		}
	}
}
