package obs

import "github.com/openirrigation/weatherd/internal/models"

const (
	FlagTempOutOfRange    = "temp_out_of_range"
	FlagHumidityInvalid   = "humidity_invalid"
	FlagWindSpeedUnlikely = "wind_speed_unlikely"
	FlagSolarNegative     = "solar_negative"
	FlagPrecipNegative    = "precip_negative"
)

// Plausibility bounds, shared by ingest flagging and the per-field filtering
// in aggregation. A reading outside its bound is stored with a flag but never
// contributes to a day bucket.

func TempPlausible(v float64) bool { return v >= -40 && v <= 140 }

func HumidityPlausible(v float64) bool { return v >= 0 && v <= 100 }

func WindPlausible(v float64) bool { return v >= 0 && v <= 200 }

// ValidateObservation flags physically implausible readings. Flagged samples
// are still stored; ingest never rejects.
func ValidateObservation(o *models.Observation) []string {
	var flags []string

	if o.TempF != nil && !TempPlausible(*o.TempF) {
		flags = append(flags, FlagTempOutOfRange)
	}
	if o.Humidity != nil && !HumidityPlausible(*o.Humidity) {
		flags = append(flags, FlagHumidityInvalid)
	}
	if o.WindMPH != nil && !WindPlausible(*o.WindMPH) {
		flags = append(flags, FlagWindSpeedUnlikely)
	}
	if o.Solar != nil && *o.Solar < 0 {
		flags = append(flags, FlagSolarNegative)
	}
	if o.DailyRainIn != nil && *o.DailyRainIn < 0 {
		flags = append(flags, FlagPrecipNegative)
	}
	if o.RainRateIn != nil && *o.RainRateIn < 0 {
		flags = append(flags, FlagPrecipNegative)
	}

	return flags
}
