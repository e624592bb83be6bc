package aggregate

import (
	"fmt"
	"math"
	"time"

	"github.com/openirrigation/weatherd/internal/models"
)

// Current returns the newest sample's instantaneous readings plus the rain
// total over the trailing 24h. Fails when no sample falls inside the window.
func (p *Provider) Current(coords models.GeoCoordinates) (*models.Current, error) {
	samples := p.store.Snapshot()
	cutoff := p.Now().Add(-24 * time.Hour).Unix()

	var precip24 float64
	newestIdx := -1
	for i, s := range samples {
		if s.Timestamp < cutoff {
			continue
		}
		if s.IntervalRainIn != nil {
			precip24 += *s.IntervalRainIn
		}
		newestIdx = i
	}
	if newestIdx < 0 {
		return nil, fmt.Errorf("%w: no observations in the last 24h", models.ErrInsufficientData)
	}

	newest := samples[newestIdx]
	cur := &models.Current{
		Timestamp:  newest.Timestamp,
		Precip24In: precip24,
		Raining:    precip24 > 0,
	}
	if newest.TempF != nil {
		t := int(math.Floor(*newest.TempF))
		cur.TempF = &t
	}
	if newest.Humidity != nil {
		h := int(math.Floor(*newest.Humidity))
		cur.Humidity = &h
	}
	if newest.WindMPH != nil {
		w := math.Round(*newest.WindMPH*10) / 10
		cur.WindMPH = &w
	}
	return cur, nil
}
