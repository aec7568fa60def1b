// Package elan talks to an Elko EP eLAN hub over HTTP and WebSocket.
//
// A Client is one authenticated session: its own cookie jar, a 3 second
// per-call timeout and a bounded login loop with exponential backoff.
//
// # Authentication
//
// The hub expects a form POST to /login with the user name and the SHA-1 of
// the Windows-1250 encoded password. Success is judged by GET /api/devices,
// not by the login response. When every round fails, Authenticate returns
// ErrAuthExhausted and the caller restarts from scratch.
//
// # Requests
//
// Do and GetJSON accept absolute device URLs as returned by /api/devices or
// paths relative to the hub. Non-2xx answers come back as *StatusError,
// which matches ErrBadStatus (and ErrUnauthorized for 401/403) under
// errors.Is.
//
// # Events
//
// Events opens /api/ws with the session cookies. Each frame names the hub id
// of a device whose state changed:
//
//	{"device": "12345"}
//
// Frames without a usable id are dropped and counted.
//
// # Usage
//
//	hub, err := elan.NewClient(elan.Config{
//	    BaseURL:  "http://192.168.1.10",
//	    Username: "admin",
//	    Password: "elkoep",
//	})
//	if err != nil {
//	    return err
//	}
//	if err := hub.Authenticate(ctx); err != nil {
//	    return err
//	}
//	var list map[string]struct{ URL string `json:"url"` }
//	err = hub.GetJSON(ctx, "/api/devices", &list)
package elan
