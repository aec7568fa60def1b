package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrStatusUnavailable is returned when a device state could not be read
	// even after a fresh login.
	ErrStatusUnavailable = errors.New("bridge: device status unavailable")

	// ErrInvalidCommand is returned when a command payload is not JSON.
	ErrInvalidCommand = errors.New("bridge: invalid command payload")

	// ErrCommandRejected is returned when the hub answers a relayed command
	// with a non-2xx status.
	ErrCommandRejected = errors.New("bridge: command rejected by hub")

	// ErrUnknownEvent is returned when a hub event names a device the
	// registry does not know.
	ErrUnknownEvent = errors.New("bridge: event for unknown device")

	// ErrBrokerLost is returned when the broker connection drops mid-session.
	ErrBrokerLost = errors.New("bridge: broker connection lost")

	// ErrNoSession is reported by Supervisor.HealthCheck between sessions.
	ErrNoSession = errors.New("bridge: no session running")

	// ErrInvalidConfig is returned by NewSupervisor for unusable settings.
	ErrInvalidConfig = errors.New("bridge: invalid configuration")
)
