package iothub

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConnectionString = "HostName=h.azure-devices.net;DeviceId=dev-01;SharedAccessKey=abc"

func TestExtractDeviceID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"scenario", validConnectionString, "dev-01"},
		{"first segment", "DeviceId=first;HostName=h", "first"},
		{"last segment without separator", "HostName=h;DeviceId=last", "last"},
		{"value with dots", "HostName=h;DeviceId=a.b-c_d;SharedAccessKey=k", "a.b-c_d"},
		{"missing", "HostName=h.azure-devices.net;SharedAccessKey=abc", UnknownDeviceID},
		{"empty", "", UnknownDeviceID},
		{"empty value", "HostName=h;DeviceId=;SharedAccessKey=k", UnknownDeviceID},
		{"empty value then later match", "DeviceId=;DeviceId=second", "second"},
		{"case sensitive", "HostName=h;deviceid=dev", UnknownDeviceID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractDeviceID(tt.in))
		})
	}
}

func TestParseConnectionString(t *testing.T) {
	// act
	cs, err := ParseConnectionString(validConnectionString)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "h.azure-devices.net", cs.HostName)
	assert.Equal(t, "dev-01", cs.DeviceID)
	assert.Equal(t, "abc", cs.SharedAccessKey)
	assert.Empty(t, cs.ModuleID)
	assert.Equal(t, "dev-01", cs.ClientID())
	assert.Equal(t, "h.azure-devices.net", cs.BrokerHost())
}

func TestParseConnectionStringOptionalSegments(t *testing.T) {
	// arrange
	s := "HostName=h.azure-devices.net; DeviceId=dev-01;ModuleId=sensor;" +
		"SharedAccessKey=MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=;GatewayHostName=edge.local;"

	// act
	cs, err := ParseConnectionString(s)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=", cs.SharedAccessKey, "trailing '=' belongs to the key")
	assert.Equal(t, "sensor", cs.ModuleID)
	assert.Equal(t, "dev-01/sensor", cs.ClientID())
	assert.Equal(t, "edge.local", cs.BrokerHost())
}

func TestParseConnectionStringInvalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"no device", "HostName=h;SharedAccessKey=abc"},
		{"no host", "DeviceId=d;SharedAccessKey=abc"},
		{"no key", "HostName=h;DeviceId=d"},
		{"garbage segment", "HostName=h;DeviceId=d;SharedAccessKey=abc;oops"},
		{"empty key name", "HostName=h;DeviceId=d;SharedAccessKey=abc;=x"},
		{"duplicate device", "HostName=h;DeviceId=a;SharedAccessKey=abc;DeviceId=b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConnectionString(tt.in)

			assert.Error(t, err)
			assert.True(t, errors.Is(err, errors.NotValid), "expected not valid error, got %v", err)
		})
	}
}
