package iothub

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base64 of "0123456789abcdef0123456789abcdef"
const testKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

var testExpiry = time.Unix(1767225600, 0)

func TestGenerateSASToken(t *testing.T) {
	token, err := GenerateSASToken("h.azure-devices.net/devices/dev-01", testKey, "", testExpiry)

	require.NoError(t, err)
	assert.Equal(t,
		"SharedAccessSignature sr=h.azure-devices.net%2Fdevices%2Fdev-01"+
			"&sig=5t8UVvnfCxVoO3V5UgnNXAHqlF6BwWHmEr3qwyt%2FDDE%3D&se=1767225600",
		token)
}

func TestGenerateSASTokenWithKeyName(t *testing.T) {
	token, err := GenerateSASToken("h.azure-devices.net/devices/dev-01", testKey, "device", testExpiry)

	require.NoError(t, err)
	assert.Contains(t, token, "&se=1767225600&skn=device")
}

func TestGenerateSASTokenInvalidKey(t *testing.T) {
	_, err := GenerateSASToken("h/devices/d", "not base64!", "", testExpiry)

	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestCredentials(t *testing.T) {
	// arrange
	cs := ConnectionString{HostName: "h.azure-devices.net", DeviceID: "dev-01", SharedAccessKey: testKey}

	// act
	password, err := cs.Password(testExpiry)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "h.azure-devices.net/dev-01/?api-version="+APIVersion, cs.Username())
	assert.Equal(t, "h.azure-devices.net/devices/dev-01", cs.ResourceURI())
	assert.Contains(t, password, "sig=5t8UVvnfCxVoO3V5UgnNXAHqlF6BwWHmEr3qwyt%2FDDE%3D")
}

func TestModuleCredentials(t *testing.T) {
	cs := ConnectionString{HostName: "h", DeviceID: "d", ModuleID: "m", SharedAccessKey: testKey}

	assert.Equal(t, "h/d/m/?api-version="+APIVersion, cs.Username())
	assert.Equal(t, "h/devices/d/modules/m", cs.ResourceURI())
}
