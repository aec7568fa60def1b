// Package device holds the eLAN devices known to one bridge session.
//
// A Registry is loaded from the hub at session start (GET /api/devices, then
// GET on every device URL) and is read-only afterwards. Each device gets an
// MQTT id, normally its hub-reported address, and two topics:
//
//	eLan/<id>/status   retained state published by the bridge
//	eLan/<id>/command  JSON commands relayed to the hub
//
// Hub change events name devices by hub id rather than address, so the
// registry indexes both.
package device
