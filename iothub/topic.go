package iothub

import (
	"net/url"
	"sort"
	"strings"

	"github.com/dratasich/iothub-device-go/events"
)

// system property keys of the topic property bag
const (
	propMessageID       = "$.mid"
	propContentType     = "$.ct"
	propContentEncoding = "$.ce"
)

// TelemetryTopic is the device-to-cloud topic for msg. Message metadata is
// appended as url encoded property bag.
//
// example: `devices/dev-01/messages/events/$.mid=...&$.ct=application%2Fjson&$.ce=utf-8`
func (cs ConnectionString) TelemetryTopic(msg events.Message) string {
	var b strings.Builder
	b.WriteString("devices/")
	b.WriteString(cs.DeviceID)
	if cs.ModuleID != "" {
		b.WriteString("/modules/")
		b.WriteString(cs.ModuleID)
	}
	b.WriteString("/messages/events/")
	b.WriteString(PropertyBag(msg))
	return b.String()
}

// PropertyBag encodes system and application properties of msg, system
// properties first, application properties sorted by key.
func PropertyBag(msg events.Message) string {
	var pairs []string
	add := func(k, v string) {
		if v != "" {
			pairs = append(pairs, k+"="+url.QueryEscape(v))
		}
	}
	add(propMessageID, msg.ID)
	add(propContentType, msg.ContentType)
	add(propContentEncoding, msg.ContentEncoding)

	keys := make([]string, 0, len(msg.Properties))
	for k := range msg.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(url.QueryEscape(k), msg.Properties[k])
	}
	return strings.Join(pairs, "&")
}
