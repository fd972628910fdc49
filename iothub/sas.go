package iothub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/juju/errors"
)

const APIVersion = "2021-04-12"

// ResourceURI is the scope a device SAS token is signed for.
func (cs ConnectionString) ResourceURI() string {
	uri := cs.HostName + "/devices/" + cs.DeviceID
	if cs.ModuleID != "" {
		uri += "/modules/" + cs.ModuleID
	}
	return uri
}

// Username is the MQTT user name for this identity.
func (cs ConnectionString) Username() string {
	if cs.ModuleID != "" {
		return fmt.Sprintf("%s/%s/%s/?api-version=%s", cs.HostName, cs.DeviceID, cs.ModuleID, APIVersion)
	}
	return fmt.Sprintf("%s/%s/?api-version=%s", cs.HostName, cs.DeviceID, APIVersion)
}

// Password returns a SAS token valid until expiry, used as MQTT password.
func (cs ConnectionString) Password(expiry time.Time) (string, error) {
	return GenerateSASToken(cs.ResourceURI(), cs.SharedAccessKey, cs.SharedAccessKeyName, expiry)
}

// GenerateSASToken signs `urlencode(uri) + "\n" + expiry` with the base64
// encoded key.
//
// see also
// - https://learn.microsoft.com/azure/iot-hub/authenticate-authorize-sas
func GenerateSASToken(resourceURI, key, keyName string, expiry time.Time) (string, error) {
	decodedKey, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", errors.NewNotValid(err, "shared access key is not base64")
	}

	sr := url.QueryEscape(resourceURI)
	se := strconv.FormatInt(expiry.Unix(), 10)

	mac := hmac.New(sha256.New, decodedKey)
	mac.Write([]byte(sr + "\n" + se))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	token := fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%s", sr, url.QueryEscape(sig), se)
	if keyName != "" {
		token += "&skn=" + url.QueryEscape(keyName)
	}
	return token, nil
}
