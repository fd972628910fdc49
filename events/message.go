package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/juju/errors"
)

const (
	ContentTypeJSON     = "application/json"
	ContentEncodingUTF8 = "utf-8"
)

// Application properties sent along with a message
type Properties map[string]string

// Device-to-cloud message
type Message struct {
	// Unique id of the message (uuid)
	ID string
	// Serialized payload
	Body []byte

	ContentType     string
	ContentEncoding string

	// Custom key value pairs, routed by the hub as application properties
	Properties Properties
}

// NewMessage serializes payload as UTF-8 JSON and tags it with a fresh id.
func NewMessage(payload any) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, errors.Annotate(err, "failed to marshal payload")
	}
	return Message{
		ID:              uuid.NewString(),
		Body:            body,
		ContentType:     ContentTypeJSON,
		ContentEncoding: ContentEncodingUTF8,
	}, nil
}
