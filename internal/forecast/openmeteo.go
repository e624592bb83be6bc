package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/openirrigation/weatherd/internal/httputil"
	"github.com/openirrigation/weatherd/internal/models"
	"github.com/openirrigation/weatherd/internal/timezone"
)

// OpenMeteo adapts the Open-Meteo daily forecast API. Imperial units are
// requested on the wire; only the solar term needs conversion (MJ/m²/day to
// kWh/m²/day).
type OpenMeteo struct {
	client  *http.Client
	zones   ZoneResolver
	baseURL string
}

func NewOpenMeteo(zones ZoneResolver) *OpenMeteo {
	return &OpenMeteo{
		client:  httputil.NewClient(),
		zones:   zones,
		baseURL: "https://api.open-meteo.com",
	}
}

func (o *OpenMeteo) Tag() string { return "openmeteo" }

type openMeteoResponse struct {
	Daily struct {
		Time     []string   `json:"time"`
		TempMax  []*float64 `json:"temperature_2m_max"`
		TempMin  []*float64 `json:"temperature_2m_min"`
		Precip   []*float64 `json:"precipitation_sum"`
		Humidity []*float64 `json:"relative_humidity_2m_mean"`
		Wind     []*float64 `json:"wind_speed_10m_mean"`
		Solar    []*float64 `json:"shortwave_radiation_sum"` // MJ/m²/day
	} `json:"daily"`
}

func (o *OpenMeteo) FetchDaily(ctx context.Context, coords models.GeoCoordinates) ([]models.ForecastDay, error) {
	url := fmt.Sprintf("%s/v1/forecast?latitude=%.4f&longitude=%.4f"+
		"&daily=temperature_2m_max,temperature_2m_min,precipitation_sum,relative_humidity_2m_mean,wind_speed_10m_mean,shortwave_radiation_sum"+
		"&temperature_unit=fahrenheit&precipitation_unit=inch&wind_speed_unit=mph&timezone=auto&forecast_days=8",
		o.baseURL, coords.Lat, coords.Lon)

	body, err := fetchJSON(ctx, o.client, o.Tag(), url)
	if err != nil {
		return nil, err
	}

	var data openMeteoResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", models.ErrUpstreamTransient, err)
	}
	if len(data.Daily.Time) == 0 {
		return nil, fmt.Errorf("%w: daily.time", models.ErrMissingField)
	}

	loc := o.zones.Location(coords)
	days := make([]models.ForecastDay, 0, len(data.Daily.Time))
	for i, date := range data.Daily.Time {
		day, err := time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: daily.time[%d]=%q", models.ErrMissingField, i, date)
		}
		maxT := at(data.Daily.TempMax, i)
		minT := at(data.Daily.TempMin, i)
		precip := at(data.Daily.Precip, i)
		if maxT == nil || minT == nil || precip == nil {
			return nil, fmt.Errorf("%w: daily temps/precip at index %d", models.ErrMissingField, i)
		}

		fd := models.ForecastDay{
			LocalMidnight: timezone.Midnight(day, loc).Unix(),
			MinTempF:      *minT,
			MaxTempF:      *maxT,
			PrecipIn:      *precip,
			Humidity:      at(data.Daily.Humidity, i),
			WindMPH:       at(data.Daily.Wind, i),
			Provider:      o.Tag(),
		}
		if s := at(data.Daily.Solar, i); s != nil {
			kwh := *s / 3.6
			fd.Solar = &kwh
		}
		days = append(days, fd)
	}
	return days, nil
}

// at indexes a possibly short or sparse upstream array.
func at(vals []*float64, i int) *float64 {
	if i >= len(vals) {
		return nil
	}
	return vals[i]
}
