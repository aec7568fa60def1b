// Package elantest provides an in-process fake eLAN hub for tests.
package elantest

import (
	"crypto/sha1" //nolint:gosec // hub protocol
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/text/encoding/charmap"
)

// sessionCookie is the cookie the fake hub issues on login.
const sessionCookie = "AuthAPI"

// Device is a fake hub device.
type Device struct {
	// HubID is the key under /api/devices.
	HubID string

	// Info is the "device info" block: type, product type, address, label.
	Info map[string]any

	// Actions is the "actions info" block.
	Actions map[string]any

	// Primary lists the primary actions.
	Primary []string

	// State is the JSON document served by /state.
	State string
}

type failure struct {
	remaining int
	code      int
}

// Put records a PUT received by the hub.
type Put struct {
	HubID string
	Body  string
}

// Hub is a fake eLAN hub backed by httptest.Server.
//
// It checks the login form, issues a session cookie, serves the device list,
// descriptors and state, records PUTs (merging their JSON into the state)
// and pushes events over /api/ws.
type Hub struct {
	Server *httptest.Server

	username string
	key      string

	mu              sync.Mutex
	token           int
	devices         map[string]*Device
	rejectLogins    int
	failState       map[string]failure
	logins          int
	deviceListLoads int
	stateRequests   map[string]int
	puts            []Put
	wsConns         []*websocket.Conn

	upgrader websocket.Upgrader
}

// NewHub starts a fake hub that accepts username and password.
// Call Close when done.
func NewHub(username, password string) *Hub {
	encoded, err := charmap.Windows1250.NewEncoder().String(password)
	if err != nil {
		panic(fmt.Sprintf("elantest: password not windows-1250: %v", err))
	}
	sum := sha1.Sum([]byte(encoded)) //nolint:gosec // hub protocol

	h := &Hub{
		username:      username,
		key:           hex.EncodeToString(sum[:]),
		token:         1,
		devices:       make(map[string]*Device),
		failState:     make(map[string]failure),
		stateRequests: make(map[string]int),
	}

	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html>eLAN</html>")
	})
	r.Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.requireSession)
		r.Get("/api", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]string{"version": "fake"})
		})
		r.Get("/api/devices", h.handleDeviceList)
		r.Get("/api/devices/{id}", h.handleDescriptor)
		r.Get("/api/devices/{id}/state", h.handleState)
		r.Put("/api/devices/{id}", h.handlePut)
		r.Get("/api/ws", h.handleWebSocket)
	})

	h.Server = httptest.NewServer(r)
	return h
}

// URL returns the hub base URL.
func (h *Hub) URL() string {
	return h.Server.URL
}

// Close stops the server and drops WebSocket clients.
func (h *Hub) Close() {
	h.DropWebSockets()
	h.Server.Close()
}

// AddDevice registers or replaces a device.
func (h *Hub) AddDevice(d Device) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := d
	h.devices[d.HubID] = &cp
}

// RemoveDevice deletes a device from the list.
func (h *Hub) RemoveDevice(hubID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.devices, hubID)
}

// SetState replaces a device's state document.
func (h *Hub) SetState(hubID, state string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if d, ok := h.devices[hubID]; ok {
		d.State = state
	}
}

// RejectLogins makes the next n login attempts fail.
func (h *Hub) RejectLogins(n int) {
	h.mu.Lock()
	h.rejectLogins = n
	h.mu.Unlock()
}

// FailState makes the next n /state requests for hubID answer code.
func (h *Hub) FailState(hubID string, n, code int) {
	h.mu.Lock()
	h.failState[hubID] = failure{remaining: n, code: code}
	h.mu.Unlock()
}

// ExpireSessions invalidates every issued cookie.
func (h *Hub) ExpireSessions() {
	h.mu.Lock()
	h.token++
	h.mu.Unlock()
}

// Logins returns the number of successful logins.
func (h *Hub) Logins() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.logins
}

// DeviceListLoads returns how often /api/devices was served successfully.
func (h *Hub) DeviceListLoads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deviceListLoads
}

// StateRequests returns how often /state was requested for hubID.
func (h *Hub) StateRequests(hubID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stateRequests[hubID]
}

// Puts returns the recorded PUT requests in arrival order.
func (h *Hub) Puts() []Put {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Put(nil), h.puts...)
}

// WebSocketClients returns the number of open WebSocket clients.
func (h *Hub) WebSocketClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.wsConns)
}

// Emit pushes {"device": hubID} to every WebSocket client.
func (h *Hub) Emit(hubID string) {
	frame, _ := json.Marshal(map[string]string{"device": hubID})
	h.EmitRaw(string(frame))
}

// EmitRaw pushes an arbitrary text frame to every WebSocket client.
func (h *Hub) EmitRaw(frame string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.wsConns {
		_ = c.WriteMessage(websocket.TextMessage, []byte(frame))
	}
}

// DropWebSockets closes every WebSocket client connection.
func (h *Hub) DropWebSockets() {
	h.mu.Lock()
	conns := h.wsConns
	h.wsConns = nil
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (h *Hub) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		h.mu.Lock()
		ok := err == nil && c.Value == fmt.Sprint(h.token)
		h.mu.Unlock()
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Hub) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rejectLogins > 0 {
		h.rejectLogins--
		http.Error(w, "rejected", http.StatusUnauthorized)
		return
	}
	if r.PostForm.Get("name") != h.username || r.PostForm.Get("key") != h.key {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
		return
	}

	h.logins++
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: fmt.Sprint(h.token), Path: "/"})
	w.WriteHeader(http.StatusOK)
}

func (h *Hub) handleDeviceList(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	h.deviceListLoads++
	list := make(map[string]map[string]string, len(h.devices))
	for id := range h.devices {
		list[id] = map[string]string{"url": h.Server.URL + "/api/devices/" + id}
	}
	h.mu.Unlock()

	writeJSON(w, list)
}

func (h *Hub) handleDescriptor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.Lock()
	d, ok := h.devices[id]
	var body map[string]any
	if ok {
		primary := append([]string(nil), d.Primary...)
		sort.Strings(primary)
		body = map[string]any{
			"id":                d.HubID,
			"device info":       d.Info,
			"actions info":      d.Actions,
			"primary actions":   primary,
			"secondary actions": []string{},
			"settings":          map[string]any{},
		}
	}
	h.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, body)
}

func (h *Hub) handleState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.Lock()
	h.stateRequests[id]++
	d, ok := h.devices[id]
	f := h.failState[id]
	fail := f.remaining > 0
	if fail {
		f.remaining--
		h.failState[id] = f
	}
	var state string
	if ok {
		state = d.State
	}
	h.mu.Unlock()

	switch {
	case !ok:
		http.NotFound(w, r)
	case fail:
		http.Error(w, http.StatusText(f.code), f.code)
	default:
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, state)
	}
}

func (h *Hub) handlePut(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	d, ok := h.devices[id]
	if !ok {
		http.NotFound(w, r)
		return
	}

	var update map[string]any
	if err := json.Unmarshal(body, &update); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	h.puts = append(h.puts, Put{HubID: id, Body: string(body)})

	state := map[string]any{}
	_ = json.Unmarshal([]byte(d.State), &state)
	for k, v := range update {
		state[k] = v
	}
	merged, _ := json.Marshal(state)
	d.State = string(merged)

	w.WriteHeader(http.StatusOK)
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.wsConns = append(h.wsConns, conn)
	h.mu.Unlock()

	// Drain client frames so close handshakes are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.removeConn(conn)
				return
			}
		}
	}()
}

func (h *Hub) removeConn(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, c := range h.wsConns {
		if c == conn {
			h.wsConns = append(h.wsConns[:i], h.wsConns[i+1:]...)
			break
		}
	}
	_ = conn.Close()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
