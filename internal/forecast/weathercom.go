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

// WeatherCom adapts the weather.com v3 daily forecast API (the Weather
// Underground upstream). Dayparts come interleaved day/night; QPF is summed
// across both halves, humidity and wind come from the day half.
type WeatherCom struct {
	apiKey  string
	client  *http.Client
	zones   ZoneResolver
	baseURL string
}

func NewWeatherCom(apiKey string, zones ZoneResolver) *WeatherCom {
	return &WeatherCom{
		apiKey:  apiKey,
		client:  httputil.NewClient(),
		zones:   zones,
		baseURL: "https://api.weather.com",
	}
}

func (w *WeatherCom) Tag() string { return "wu" }

type weatherComResponse struct {
	ValidTimeLocal []string   `json:"validTimeLocal"`
	CalDayTempMax  []*float64 `json:"calendarDayTemperatureMax"`
	CalDayTempMin  []*float64 `json:"calendarDayTemperatureMin"`
	Daypart        []struct {
		QPF              []*float64 `json:"qpf"`
		RelativeHumidity []*float64 `json:"relativeHumidity"`
		WindSpeed        []*float64 `json:"windSpeed"`
	} `json:"daypart"`
}

func (w *WeatherCom) FetchDaily(ctx context.Context, coords models.GeoCoordinates) ([]models.ForecastDay, error) {
	url := fmt.Sprintf("%s/v3/wx/forecast/daily/7day?geocode=%.4f,%.4f&format=json&units=e&language=en-US&apiKey=%s",
		w.baseURL, coords.Lat, coords.Lon, w.apiKey)

	body, err := fetchJSON(ctx, w.client, w.Tag(), url)
	if err != nil {
		return nil, err
	}

	var data weatherComResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", models.ErrUpstreamTransient, err)
	}
	if len(data.ValidTimeLocal) == 0 {
		return nil, fmt.Errorf("%w: validTimeLocal", models.ErrMissingField)
	}

	loc := w.zones.Location(coords)
	days := make([]models.ForecastDay, 0, len(data.ValidTimeLocal))
	for i, vt := range data.ValidTimeLocal {
		validTime, err := time.Parse("2006-01-02T15:04:05-0700", vt)
		if err != nil {
			return nil, fmt.Errorf("%w: validTimeLocal[%d]=%q", models.ErrMissingField, i, vt)
		}
		maxT := at(data.CalDayTempMax, i)
		minT := at(data.CalDayTempMin, i)
		if maxT == nil || minT == nil {
			// The first slot of an evening fetch has its calendar-day temps
			// already expired; skip it rather than fail the whole response.
			if i == 0 {
				continue
			}
			return nil, fmt.Errorf("%w: calendarDayTemperature at index %d", models.ErrMissingField, i)
		}

		fd := models.ForecastDay{
			LocalMidnight: timezone.Midnight(validTime, loc).Unix(),
			MinTempF:      *minT,
			MaxTempF:      *maxT,
			Provider:      w.Tag(),
		}

		if len(data.Daypart) > 0 {
			dp := data.Daypart[0]
			dayIdx, nightIdx := i*2, i*2+1
			if q := at(dp.QPF, dayIdx); q != nil {
				fd.PrecipIn += *q
			}
			if q := at(dp.QPF, nightIdx); q != nil {
				fd.PrecipIn += *q
			}
			fd.Humidity = at(dp.RelativeHumidity, dayIdx)
			fd.WindMPH = at(dp.WindSpeed, dayIdx)
		}
		days = append(days, fd)
	}
	return days, nil
}
