package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openirrigation/weatherd/internal/models"
	"github.com/openirrigation/weatherd/internal/obs"
)

// handlePush ingests one Weather-Underground-protocol observation. Missing,
// non-numeric, or sensor-absent values are absorbed as nil; the station
// always gets its literal "success" back.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	ts := time.Now().UTC()
	if v := q.Get("dateutc"); v != "" && v != "now" {
		if t, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
			ts = t.UTC()
		}
	}

	o := models.Observation{Timestamp: ts.Unix()}
	o.TempF = numParam(q, "tempf")
	o.Humidity = numParam(q, "humidity")
	o.WindMPH = numParam(q, "windspeedmph")
	o.DailyRainIn = numParam(q, "dailyrainin")
	o.RainRateIn = numParam(q, "rainin")
	if sr := numParam(q, "solarradiation"); sr != nil {
		// W/m² → kWh/m²/day
		v := *sr * 24 / 1000
		o.Solar = &v
	}

	o.QualityFlags = obs.ValidateObservation(&o)
	if len(o.QualityFlags) > 0 {
		log.Printf("ingest: flagged observation at %d: %v", o.Timestamp, o.QualityFlags)
	}

	s.store.Ingest(o)

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "success\n")
}

type wateringResponse struct {
	Series models.CombinedSeries `json:"series"`
}

func (s *Server) handleWatering(w http.ResponseWriter, r *http.Request) {
	coords, err := parseCoords(r.URL.Query())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	series, err := s.composer.ViewForAdjustment(r.Context(), coords, r.URL.Query().Get("provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, wateringResponse{Series: series})
}

type weatherResponse struct {
	Current  *models.Current       `json:"current"`
	Forecast models.CombinedSeries `json:"forecast"`
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	coords, err := parseCoords(r.URL.Query())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	current, tail, err := s.composer.ViewForRainRestriction(r.Context(), coords, r.URL.Query().Get("provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	if tail == nil {
		tail = models.CombinedSeries{}
	}
	writeJSON(w, weatherResponse{Current: current, Forecast: tail})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":       "ok",
		"observations": s.store.Len(),
		"providers":    s.providers.Tags(),
	}
	if newest, ok := s.store.Newest(); ok {
		resp["lastObservation"] = newest.Timestamp
	}
	writeJSON(w, resp)
}

// parseCoords accepts loc=lat,lon (controller convention) or separate
// lat=/lon= parameters.
func parseCoords(q url.Values) (models.GeoCoordinates, error) {
	if loc := q.Get("loc"); loc != "" {
		parts := strings.SplitN(loc, ",", 2)
		if len(parts) != 2 {
			return models.GeoCoordinates{}, fmt.Errorf("loc must be lat,lon")
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil {
			return models.GeoCoordinates{}, fmt.Errorf("loc must be numeric lat,lon")
		}
		return models.GeoCoordinates{Lat: lat, Lon: lon}, nil
	}

	latS, lonS := q.Get("lat"), q.Get("lon")
	if latS == "" || lonS == "" {
		return models.GeoCoordinates{}, fmt.Errorf("coordinates required (loc=lat,lon)")
	}
	lat, err1 := strconv.ParseFloat(latS, 64)
	lon, err2 := strconv.ParseFloat(lonS, 64)
	if err1 != nil || err2 != nil {
		return models.GeoCoordinates{}, fmt.Errorf("coordinates must be numeric")
	}
	return models.GeoCoordinates{Lat: lat, Lon: lon}, nil
}

func numParam(q url.Values, name string) *float64 {
	v := q.Get(name)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f == models.SensorAbsent {
		return nil
	}
	return &f
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSONError(w http.ResponseWriter, status int, kind string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error(), Kind: kind})
}

// writeError maps engine error kinds onto the HTTP surface: client mistakes
// are 4xx, cold-start and upstream trouble are 5xx.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidProvider):
		writeJSONError(w, http.StatusBadRequest, "invalid_provider", err)
	case errors.Is(err, models.ErrInsufficientData):
		writeJSONError(w, http.StatusServiceUnavailable, "insufficient_data", err)
	case errors.Is(err, models.ErrMissingField):
		writeJSONError(w, http.StatusBadGateway, "missing_field", err)
	case errors.Is(err, models.ErrUpstreamTransient):
		writeJSONError(w, http.StatusBadGateway, "upstream_transient", err)
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal", err)
	}
}
