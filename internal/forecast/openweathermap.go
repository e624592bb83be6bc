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

const mmPerInch = 25.4

// OpenWeatherMap adapts the One Call 3.0 daily forecast. Imperial units are
// requested, but rain and snow totals always come back in millimetres and
// are converted here. Daily timestamps sit at local noon, so entries are
// anchored to the local midnight of their calendar day.
type OpenWeatherMap struct {
	apiKey  string
	client  *http.Client
	zones   ZoneResolver
	baseURL string
}

func NewOpenWeatherMap(apiKey string, zones ZoneResolver) *OpenWeatherMap {
	return &OpenWeatherMap{
		apiKey:  apiKey,
		client:  httputil.NewClient(),
		zones:   zones,
		baseURL: "https://api.openweathermap.org",
	}
}

func (o *OpenWeatherMap) Tag() string { return "owm" }

type oneCallResponse struct {
	Daily []struct {
		Dt   int64 `json:"dt"`
		Temp struct {
			Min *float64 `json:"min"`
			Max *float64 `json:"max"`
		} `json:"temp"`
		Humidity  *float64 `json:"humidity"`
		WindSpeed *float64 `json:"wind_speed"`
		Rain      *float64 `json:"rain"` // mm; omitted when dry
		Snow      *float64 `json:"snow"` // mm
	} `json:"daily"`
}

func (o *OpenWeatherMap) FetchDaily(ctx context.Context, coords models.GeoCoordinates) ([]models.ForecastDay, error) {
	url := fmt.Sprintf("%s/data/3.0/onecall?lat=%.4f&lon=%.4f&exclude=current,minutely,hourly,alerts&units=imperial&appid=%s",
		o.baseURL, coords.Lat, coords.Lon, o.apiKey)

	body, err := fetchJSON(ctx, o.client, o.Tag(), url)
	if err != nil {
		return nil, err
	}

	var data oneCallResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", models.ErrUpstreamTransient, err)
	}
	if len(data.Daily) == 0 {
		return nil, fmt.Errorf("%w: daily", models.ErrMissingField)
	}

	loc := o.zones.Location(coords)
	days := make([]models.ForecastDay, 0, len(data.Daily))
	for i, d := range data.Daily {
		if d.Temp.Min == nil || d.Temp.Max == nil {
			return nil, fmt.Errorf("%w: daily[%d].temp", models.ErrMissingField, i)
		}

		// Absent rain/snow means a dry day in this API, not a gap.
		var precip float64
		if d.Rain != nil {
			precip += *d.Rain / mmPerInch
		}
		if d.Snow != nil {
			precip += *d.Snow / mmPerInch
		}

		days = append(days, models.ForecastDay{
			LocalMidnight: timezone.Midnight(time.Unix(d.Dt, 0), loc).Unix(),
			MinTempF:      *d.Temp.Min,
			MaxTempF:      *d.Temp.Max,
			PrecipIn:      precip,
			Humidity:      d.Humidity,
			WindMPH:       d.WindSpeed,
			Provider:      o.Tag(),
		})
	}
	return days, nil
}
