package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrUnknownDevice) {
//	    // drop the message
//	}
var (
	// ErrUnknownDevice is returned for an id the registry does not hold.
	ErrUnknownDevice = errors.New("device: unknown device")

	// ErrRegistryStale is returned by Verify when the hub's device list no
	// longer matches the loaded registry.
	ErrRegistryStale = errors.New("device: hub device list changed")

	// ErrInvalidDescriptor is returned when a device descriptor cannot be decoded.
	ErrInvalidDescriptor = errors.New("device: invalid descriptor")

	// ErrInvalidID is returned when a device's id cannot be an MQTT topic level.
	ErrInvalidID = errors.New("device: id is not a valid topic level")
)
