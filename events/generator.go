package events

import (
	"math"
	"math/rand"
	"time"
)

// Bounds of the synthetic readings, lower bound inclusive, upper exclusive
const (
	MinTemperature   = 20.0
	TemperatureRange = 15.0
	MinHumidity      = 40.0
	HumidityRange    = 40.0
)

// Generator produces mock sensor readings for a fixed device.
type Generator struct {
	deviceID string

	// uniform source in [0,1)
	float func() float64
	now   func() time.Time
}

func NewGenerator(deviceID string) *Generator {
	return &Generator{
		deviceID: deviceID,
		float:    rand.Float64,
		now:      time.Now,
	}
}

func (g *Generator) DeviceID() string {
	return g.deviceID
}

// Generate returns a new reading with uniformly distributed temperature and
// humidity, stamped with the current time.
func (g *Generator) Generate() TelemetryReading {
	return TelemetryReading{
		DeviceID:    g.deviceID,
		Temperature: uniform(MinTemperature, TemperatureRange, g.float()),
		Humidity:    uniform(MinHumidity, HumidityRange, g.float()),
		Timestamp:   g.now().UTC().Format(TimestampFormat),
	}
}

// uniform maps u in [0,1) to [min,min+span). Rounding may reach the upper
// bound for u close to 1, such values are clamped below it.
func uniform(min, span, u float64) float64 {
	upper := min + span
	v := min + u*span
	if v >= upper {
		return math.Nextafter(upper, min)
	}
	return v
}
