package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/elan2mqtt/internal/device"
	"github.com/nerrad567/elan2mqtt/internal/discovery"
)

// DeviceView is the API shape of a device.
type DeviceView struct {
	ID           string   `json:"id"`
	IDKind       string   `json:"id_kind"`
	HubID        string   `json:"hub_id"`
	Label        string   `json:"label"`
	Type         string   `json:"type"`
	ProductType  string   `json:"product_type"`
	Actions      []string `json:"primary_actions"`
	StatusTopic  string   `json:"status_topic"`
	ControlTopic string   `json:"control_topic"`

	// Discovery lists the config topics generated for the device.
	Discovery []string `json:"discovery"`

	Descriptor json.RawMessage `json:"descriptor,omitempty"`
}

// DeviceListResponse is the body of GET /api/v1/devices.
type DeviceListResponse struct {
	Devices []DeviceView `json:"devices"`
	Count   int          `json:"count"`
}

func (s *Server) deviceView(d *device.Device, withDescriptor bool) DeviceView {
	v := DeviceView{
		ID:           d.ID.String(),
		IDKind:       d.ID.Kind.String(),
		HubID:        d.HubID,
		Label:        d.Label,
		Type:         d.Type,
		ProductType:  d.ProductType,
		Actions:      append([]string{}, d.PrimaryActions...),
		StatusTopic:  d.StatusTopic,
		ControlTopic: d.ControlTopic,
		Discovery:    []string{},
	}
	for _, m := range discovery.Discover(d, discovery.Options{Topics: s.topics}) {
		v.Discovery = append(v.Discovery, m.Topic)
	}
	// Basic and template light documents share a topic.
	v.Discovery = slices.Compact(v.Discovery)
	if withDescriptor {
		v.Descriptor = d.Descriptor
	}
	return v
}

// registry returns the current session's registry, writing 503 when no
// session is up.
func (s *Server) registry(w http.ResponseWriter) *device.Registry {
	reg := s.session.Registry()
	if reg == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "no active hub session")
	}
	return reg
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	reg := s.registry(w)
	if reg == nil {
		return
	}

	resp := DeviceListResponse{Devices: make([]DeviceView, 0, reg.Len())}
	for _, d := range reg.Devices() {
		resp.Devices = append(resp.Devices, s.deviceView(d, false))
	}
	resp.Count = len(resp.Devices)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	reg := s.registry(w)
	if reg == nil {
		return
	}

	d, err := reg.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, s.deviceView(d, true))
}
