package mqtt

import "errors"

var (
	// ErrNotConnected is returned for operations on a link that is down or closed.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed wraps a failed or timed out Connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	ErrPublishFailed   = errors.New("mqtt: publish failed")
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS rejects QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
