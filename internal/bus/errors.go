package bus

import (
	"errors"
	"fmt"
)

// Domain errors for bus operations.
var (
	// ErrTransport wraps any failure to reach the backend. Calls failing with
	// it are retried by the Proxy.
	ErrTransport = errors.New("bus: transport failure")

	// ErrNotConnected is returned by a transport used before Open succeeded.
	ErrNotConnected = errors.New("bus: not connected")

	// ErrCallTimeout is returned when no reply arrives within the call timeout.
	ErrCallTimeout = errors.New("bus: call timed out")

	// ErrConnectionLost is returned for calls in flight when the broker link drops.
	ErrConnectionLost = errors.New("bus: connection lost")

	// ErrNotOk is returned when the backend answered but did not echo "Ok".
	ErrNotOk = errors.New("bus: result not ok")

	// ErrInvalidOptions is returned by NewProxy and NewMQTTTransport for
	// incomplete options.
	ErrInvalidOptions = errors.New("bus: invalid options")
)

// RemoteError is a reply in which the backend reported an error. It is never
// retried.
type RemoteError struct {
	Method  Method
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bus: %s: remote error: %s", e.Method, e.Message)
}

// ExpectOK turns a call result into an error unless the backend echoed "Ok".
func ExpectOK(result string, err error) error {
	if err != nil {
		return err
	}
	if result != ResultOK {
		return fmt.Errorf("%w: %q", ErrNotOk, result)
	}
	return nil
}
