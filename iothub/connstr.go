// Package iothub implements the device side conventions of Azure IoT Hub over
// MQTT: connection strings, SAS tokens, credentials and telemetry topics.
//
// see also
// - api: https://learn.microsoft.com/azure/iot/iot-mqtt-connect-to-iot-hub
package iothub

import (
	"regexp"
	"strings"

	"github.com/juju/errors"
	"github.com/mitchellh/mapstructure"
)

// Device id used when the connection string carries none
const UnknownDeviceID = "unknown"

var deviceIDPattern = regexp.MustCompile(`DeviceId=([^;]+)`)

// Device connection string
//
// format: `HostName=<hub>.azure-devices.net;DeviceId=<id>;SharedAccessKey=<key>`
type ConnectionString struct {
	HostName        string `mapstructure:"HostName"`
	DeviceID        string `mapstructure:"DeviceId"`
	SharedAccessKey string `mapstructure:"SharedAccessKey"`

	// optional segments

	ModuleID            string `mapstructure:"ModuleId"`
	SharedAccessKeyName string `mapstructure:"SharedAccessKeyName"`
	GatewayHostName     string `mapstructure:"GatewayHostName"`
}

// ExtractDeviceID returns the value of the first non-empty `DeviceId=`
// segment, or UnknownDeviceID.
func ExtractDeviceID(connectionString string) string {
	m := deviceIDPattern.FindStringSubmatch(connectionString)
	if m == nil {
		return UnknownDeviceID
	}
	return m[1]
}

// ParseConnectionString splits the `key=value;...` pairs and decodes them.
// Host, device id and key are mandatory.
func ParseConnectionString(s string) (ConnectionString, error) {
	segments := map[string]string{}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		// keys are base64 and may end with '='
		key, value, found := strings.Cut(part, "=")
		if !found || key == "" {
			return ConnectionString{}, errors.NotValidf("connection string segment %q", part)
		}
		// a repeated key would leave the identity ambiguous
		if _, dup := segments[key]; dup {
			return ConnectionString{}, errors.NotValidf("duplicate connection string key %q", key)
		}
		segments[key] = value
	}

	var cs ConnectionString
	if err := mapstructure.Decode(segments, &cs); err != nil {
		return ConnectionString{}, errors.Annotate(err, "failed to decode connection string")
	}

	var missing []string
	if cs.HostName == "" {
		missing = append(missing, "HostName")
	}
	if cs.DeviceID == "" {
		missing = append(missing, "DeviceId")
	}
	if cs.SharedAccessKey == "" {
		missing = append(missing, "SharedAccessKey")
	}
	if len(missing) > 0 {
		return ConnectionString{}, errors.NotValidf("connection string without %s", strings.Join(missing, ", "))
	}
	return cs, nil
}

// ClientID is the MQTT client id the hub expects for this identity.
func (cs ConnectionString) ClientID() string {
	if cs.ModuleID != "" {
		return cs.DeviceID + "/" + cs.ModuleID
	}
	return cs.DeviceID
}

// BrokerHost is the host to dial, a gateway if one is configured.
func (cs ConnectionString) BrokerHost() string {
	if cs.GatewayHostName != "" {
		return cs.GatewayHostName
	}
	return cs.HostName
}
