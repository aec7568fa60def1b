package device

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// DefaultProductType stands in for a missing product type when matching.
const DefaultProductType = "---"

// IDKind tells where a DeviceID came from.
type IDKind int

const (
	// KindMAC is the normal case: the hub reported a device address.
	KindMAC IDKind = iota + 1

	// KindHubID is the fallback when the descriptor has no address.
	KindHubID
)

// String returns the kind name used in logs.
func (k IDKind) String() string {
	switch k {
	case KindMAC:
		return "mac"
	case KindHubID:
		return "hub_id"
	default:
		return "unknown"
	}
}

// DeviceID identifies a device in MQTT topics.
//
// It is either the device address reported by the hub (usually a MAC-style
// string) or, when that is missing, the hub's own device id.
type DeviceID struct {
	Kind  IDKind
	Value string
}

// MACID returns an address-based id.
func MACID(address string) DeviceID {
	return DeviceID{Kind: KindMAC, Value: address}
}

// HubDeviceID returns a fallback id built from the hub's device id.
func HubDeviceID(id string) DeviceID {
	return DeviceID{Kind: KindHubID, Value: id}
}

// String returns the id as used in topics.
func (id DeviceID) String() string {
	return id.Value
}

// IsZero reports whether the id is unset.
func (id DeviceID) IsZero() bool {
	return id.Value == ""
}

// ActionInfo describes one action the device accepts, from "actions info".
type ActionInfo struct {
	Type string   `json:"type"`
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step *float64 `json:"step,omitempty"`
}

// Device is a hub device as loaded at session start. Devices are immutable
// once loaded; the registry hands out shared read-only pointers.
type Device struct {
	ID    DeviceID
	HubID string
	URL   string

	Type        string
	ProductType string
	Label       string

	PrimaryActions   []string
	SecondaryActions []string
	ActionsInfo      map[string]ActionInfo

	StatusTopic  string
	ControlTopic string

	// Descriptor is the raw document from GET {url}.
	Descriptor json.RawMessage
}

// HasPrimaryAction reports whether name is among the primary actions.
func (d *Device) HasPrimaryAction(name string) bool {
	return slices.Contains(d.PrimaryActions, name)
}

// ActionMax returns the declared maximum of an action, or def when absent.
func (d *Device) ActionMax(name string, def float64) float64 {
	if info, ok := d.ActionsInfo[name]; ok && info.Max != nil {
		return *info.Max
	}
	return def
}

// StateURL returns the device's state endpoint.
func (d *Device) StateURL() string {
	return strings.TrimRight(d.URL, "/") + "/state"
}

// Name returns the label, or the id when the hub has no label.
func (d *Device) Name() string {
	if d.Label != "" {
		return d.Label
	}
	return d.ID.String()
}

// descriptor is the wire shape of GET {device url}.
type descriptor struct {
	ID   flexString `json:"id"`
	Info struct {
		Type        string     `json:"type"`
		ProductType string     `json:"product type"`
		Address     flexString `json:"address"`
		Label       string     `json:"label"`
	} `json:"device info"`
	ActionsInfo map[string]ActionInfo `json:"actions info"`
	Primary     []string              `json:"primary actions"`
	Secondary   []string              `json:"secondary actions"`
}

// flexString decodes a JSON string or number into a string.
// The hub reports addresses and ids as either.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*f = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexString(n.String())
	return nil
}
