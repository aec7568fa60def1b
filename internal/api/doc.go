// Package api implements the operations HTTP server of elan2mqtt.
//
// It is read-only and intended for monitoring:
//   - GET /api/v1/health       session state of the bridge supervisor
//   - GET /api/v1/devices      devices of the current session
//   - GET /api/v1/devices/{id} one device with its raw hub descriptor
//   - GET /api/v1/commands     command audit trail, when enabled
//   - GET /metrics             Prometheus exposition
//
// Device control stays on MQTT; the server never talks to the hub.
package api
