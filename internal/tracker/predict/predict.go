package predict

import (
	"fmt"
	"math"
	"time"

	"bus-tracker/internal/tracker/domain"
)

const (
	earthRadiusMeters = 6371000

	// speedFloorKmh is the threshold below which the reported speed is
	// considered momentary noise (a bus stopped at a light) rather than a
	// usable cruising speed.
	speedFloorKmh = 5.0

	// DefaultCruiseSpeedKmh replaces a near-zero reported speed so a
	// stationary vehicle does not produce an unbounded ETA.
	DefaultCruiseSpeedKmh = 30.0
)

// TrafficFactor scales effective speed by time of day. It is a deliberately
// coarse heuristic and may be swapped for a learned predictor without
// touching the engine interface.
type TrafficFactor func(t time.Time) float64

// TrafficConfig holds the peak windows for the default time-of-day factor.
// A window covers whole hours: [StartHour, EndHour] inclusive.
type TrafficConfig struct {
	MorningStartHour int
	MorningEndHour   int
	MorningFactor    float64
	EveningStartHour int
	EveningEndHour   int
	EveningFactor    float64
	OffPeakFactor    float64
}

// DefaultTrafficConfig mirrors the deployed heuristic: 07-09 morning peak,
// 16-19 evening peak.
func DefaultTrafficConfig() TrafficConfig {
	return TrafficConfig{
		MorningStartHour: 7,
		MorningEndHour:   9,
		MorningFactor:    0.7,
		EveningStartHour: 16,
		EveningEndHour:   19,
		EveningFactor:    0.6,
		OffPeakFactor:    0.9,
	}
}

// Factor returns the traffic multiplier for the given wall-clock time.
func (c TrafficConfig) Factor(t time.Time) float64 {
	hour := t.Hour()
	switch {
	case hour >= c.MorningStartHour && hour <= c.MorningEndHour:
		return c.MorningFactor
	case hour >= c.EveningStartHour && hour <= c.EveningEndHour:
		return c.EveningFactor
	default:
		return c.OffPeakFactor
	}
}

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// EstimateArrival computes an arrival prediction from a sample, a destination
// and the current time. It is a pure function of its inputs: no hidden state.
//
// cruiseKmh substitutes for a reported speed at or below the 5 km/h floor;
// negative reported speeds are treated as zero.
func EstimateArrival(sample domain.VehicleLocationSample, dest domain.Destination, now time.Time, factor TrafficFactor, cruiseKmh float64) domain.PredictionResult {
	currentSpeed := sample.SpeedKmh
	if currentSpeed < 0 {
		currentSpeed = 0
	}
	if cruiseKmh <= 0 {
		cruiseKmh = DefaultCruiseSpeedKmh
	}

	baseSpeed := currentSpeed
	if baseSpeed <= speedFloorKmh {
		baseSpeed = cruiseKmh
	}

	effectiveSpeed := baseSpeed * factor(now)

	distance := Haversine(sample.Latitude, sample.Longitude, dest.Latitude, dest.Longitude)

	eta := now
	if distance > 0 {
		seconds := distance / (effectiveSpeed / 3.6)
		eta = now.Add(time.Duration(seconds * float64(time.Second)))
	}

	return domain.PredictionResult{
		VehicleID:        sample.VehicleID,
		DistanceMeters:   distance,
		CurrentSpeedKmh:  currentSpeed,
		AdjustedSpeedKmh: effectiveSpeed,
		EtaTimestamp:     eta,
		EtaDurationText:  FormatDuration(eta.Sub(now)),
		DistanceText:     FormatDistance(distance),
	}
}

// FormatDistance renders meters below one kilometer, kilometers to one
// decimal otherwise.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// FormatDuration renders whole minutes, switching to "H hours M minutes"
// above an hour.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(math.Round(d.Minutes()))
	if minutes <= 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	return fmt.Sprintf("%d hours %d minutes", minutes/60, minutes%60)
}

// SpeedHint supplies a historical fallback speed for a vehicle, used instead
// of the configured cruise default when the live sample is too slow to trust.
// The backing implementation may query the location history archive.
type SpeedHint func(vehicleID string) (float64, bool)

// Engine binds a destination and traffic heuristic to the pure estimator.
type Engine struct {
	Destination domain.Destination
	Factor      TrafficFactor
	CruiseKmh   float64
	Hint        SpeedHint
}

// NewEngine builds an engine with the default heuristic for any zero fields.
func NewEngine(dest domain.Destination, factor TrafficFactor, cruiseKmh float64) *Engine {
	if factor == nil {
		cfg := DefaultTrafficConfig()
		factor = cfg.Factor
	}
	if cruiseKmh <= 0 {
		cruiseKmh = DefaultCruiseSpeedKmh
	}
	return &Engine{Destination: dest, Factor: factor, CruiseKmh: cruiseKmh}
}

// Estimate runs the pure estimator, preferring a historical speed hint over
// the static cruise default when the live speed is below the floor.
func (e *Engine) Estimate(sample domain.VehicleLocationSample, now time.Time) domain.PredictionResult {
	cruise := e.CruiseKmh
	if e.Hint != nil && sample.SpeedKmh <= speedFloorKmh {
		if hint, ok := e.Hint(sample.VehicleID); ok && hint > speedFloorKmh {
			cruise = hint
		}
	}
	return EstimateArrival(sample, e.Destination, now, e.Factor, cruise)
}
