package mqtt

import "github.com/juju/errors"

// Error types of the publisher, test with errors.Is
const (
	// missing or malformed configuration, fatal
	ErrConfiguration = errors.ConstError("configuration error")
	// initial connection failed, fatal
	ErrConnection = errors.ConstError("connection error")
	// a single message could not be sent, the reading is dropped
	ErrTransmit = errors.ConstError("transmit error")
	// disconnect failed during shutdown
	ErrClose = errors.ConstError("close error")
)

// IsFatal reports whether err must terminate the process with a failure.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrConnection)
}
