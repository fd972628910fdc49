package events

// ISO-8601 in UTC with millisecond precision
//
// example: `2026-01-29T16:12:00.000Z`
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Telemetry reading of a single device
//
// example:
// `{"deviceId": "dev-01", "temperature": 22.5, "humidity": 60.1, "ts": "2026-01-29T16:12:00.000Z"}`
type TelemetryReading struct {
	// Device identity, fixed for the lifetime of the process
	DeviceID string `json:"deviceId"`
	// Temperature in °C
	Temperature float64 `json:"temperature"`
	// Relative humidity in %
	Humidity float64 `json:"humidity"`
	// Time of measurement, see TimestampFormat
	Timestamp string `json:"ts"`
}
