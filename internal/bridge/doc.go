// Package bridge moves state and commands between an eLAN hub and MQTT.
//
// A session owns one hub login, one device registry and one broker
// connection. Inside a session a single goroutine does all the work:
//
//   - StatusBridge reads GET {device}/state and publishes it retained
//   - CommandBridge relays eLan/{id}/command payloads as PUT {device}
//   - the poll loop sweeps every device on a timer
//   - the push loop reacts to hub WebSocket events
//
// Any error that is not handled locally ends the session. The Supervisor
// then waits a fixed delay and starts a new one from scratch: new cookie
// jar, freshly loaded registry and a new broker connection.
//
// Recovered locally:
//   - a rejected status read triggers one relogin and one retry
//   - commands on unknown topics or for unknown devices are dropped
//   - command payloads that are not JSON are dropped
//   - events naming unknown devices are dropped
//   - hub timeouts are logged and the loop carries on
package bridge
