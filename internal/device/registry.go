package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/nerrad567/elan2mqtt/internal/infrastructure/mqtt"
)

// devicesPath lists every device on the hub.
const devicesPath = "/api/devices"

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Hub is the part of the hub session the registry needs.
type Hub interface {
	GetJSON(ctx context.Context, target string, v any) error
}

// Options configures Load.
type Options struct {
	// Topics builds status and command topics. Zero value uses defaults.
	Topics mqtt.Topics

	Logger Logger
}

// listEntry is one value of the /api/devices map.
type listEntry struct {
	URL string `json:"url"`
}

// Registry is the set of devices known for one session.
//
// It is built once by Load and never modified, so concurrent reads need no
// locking. A new session loads a new Registry.
type Registry struct {
	devices map[string]*Device // by DeviceID value
	byHubID map[string]*Device
	order   []string // sorted DeviceID values

	// skipped holds hub ids dropped at load time as duplicates.
	skipped map[string]struct{}
}

// Load fetches the device list and every descriptor from the hub.
//
// For each device the MQTT id is its reported address; when the address is
// missing the hub id is used and a warning is logged. A second device that
// derives an id already taken is skipped with a warning so topics never
// collide, and so is a device whose id contains a topic wildcard or
// separator. Any fetch or decode failure aborts the load.
func Load(ctx context.Context, hub Hub, opts Options) (*Registry, error) {
	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	var list map[string]listEntry
	if err := hub.GetJSON(ctx, devicesPath, &list); err != nil {
		return nil, fmt.Errorf("loading device list: %w", err)
	}

	r := &Registry{
		devices: make(map[string]*Device, len(list)),
		byHubID: make(map[string]*Device, len(list)),
		skipped: make(map[string]struct{}),
	}

	for _, hubID := range slices.Sorted(maps.Keys(list)) {
		target := list[hubID].URL
		if target == "" {
			target = devicesPath + "/" + hubID
			logger.Warn("device list entry without url", "hub_id", hubID, "fallback", target)
		}

		var raw json.RawMessage
		if err := hub.GetJSON(ctx, target, &raw); err != nil {
			return nil, fmt.Errorf("loading device %s: %w", hubID, err)
		}

		d, err := ParseDescriptor(hubID, target, raw, opts.Topics)
		if errors.Is(err, ErrInvalidID) {
			logger.Warn("skipping device with unusable id", "hub_id", hubID, "error", err)
			r.skipped[hubID] = struct{}{}
			continue
		}
		if err != nil {
			return nil, err
		}

		if d.ID.Kind == KindHubID {
			logger.Warn("device has no address, using hub id in topics",
				"hub_id", hubID, "label", d.Label, "type", d.Type)
		}

		if existing, dup := r.devices[d.ID.Value]; dup {
			logger.Warn("skipping device with duplicate id",
				"id", d.ID.Value, "hub_id", hubID, "kept_hub_id", existing.HubID)
			r.skipped[hubID] = struct{}{}
			continue
		}

		r.devices[d.ID.Value] = d
		r.byHubID[hubID] = d
		r.order = append(r.order, d.ID.Value)

		logger.Debug("device loaded",
			"id", d.ID.Value, "hub_id", hubID, "type", d.Type, "product_type", d.ProductType)
	}

	slices.Sort(r.order)
	logger.Info("device registry loaded", "count", len(r.order))
	return r, nil
}

// ParseDescriptor builds a Device from a descriptor document.
func ParseDescriptor(hubID, url string, data []byte, topics mqtt.Topics) (*Device, error) {
	var desc descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: device %s: %w", ErrInvalidDescriptor, hubID, err)
	}

	id := MACID(string(desc.Info.Address))
	if id.IsZero() {
		fallback := string(desc.ID)
		if fallback == "" {
			fallback = hubID
		}
		id = HubDeviceID(fallback)
	}
	if strings.ContainsAny(id.Value, "/+#") {
		return nil, fmt.Errorf("%w: device %s: %q", ErrInvalidID, hubID, id.Value)
	}

	productType := strings.TrimSpace(desc.Info.ProductType)
	if productType == "" {
		productType = DefaultProductType
	}

	return &Device{
		ID:               id,
		HubID:            hubID,
		URL:              url,
		Type:             strings.TrimSpace(desc.Info.Type),
		ProductType:      productType,
		Label:            desc.Info.Label,
		PrimaryActions:   desc.Primary,
		SecondaryActions: desc.Secondary,
		ActionsInfo:      desc.ActionsInfo,
		StatusTopic:      topics.DeviceStatus(id.Value),
		ControlTopic:     topics.DeviceCommand(id.Value),
		Descriptor:       append(json.RawMessage(nil), data...),
	}, nil
}

// Get returns the device with the given MQTT id.
func (r *Registry) Get(id string) (*Device, error) {
	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	return d, nil
}

// ByHubID returns the device the hub knows by hubID. Events name devices
// this way.
func (r *Registry) ByHubID(hubID string) (*Device, error) {
	d, ok := r.byHubID[hubID]
	if !ok {
		return nil, fmt.Errorf("%w: hub id %q", ErrUnknownDevice, hubID)
	}
	return d, nil
}

// Devices returns every device ordered by id.
func (r *Registry) Devices() []*Device {
	out := make([]*Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.devices[id])
	}
	return out
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	return len(r.order)
}

// ControlTopics returns every device's command topic, ordered by id.
func (r *Registry) ControlTopics() []string {
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.devices[id].ControlTopic)
	}
	return out
}

// Verify re-reads the hub's device list and reports ErrRegistryStale when
// devices were added or removed since Load.
func (r *Registry) Verify(ctx context.Context, hub Hub) error {
	var list map[string]listEntry
	if err := hub.GetJSON(ctx, devicesPath, &list); err != nil {
		return fmt.Errorf("verifying device list: %w", err)
	}

	for hubID := range list {
		_, loaded := r.byHubID[hubID]
		_, skipped := r.skipped[hubID]
		if !loaded && !skipped {
			return fmt.Errorf("%w: new device %s", ErrRegistryStale, hubID)
		}
	}
	for hubID := range r.byHubID {
		if _, ok := list[hubID]; !ok {
			return fmt.Errorf("%w: device %s removed", ErrRegistryStale, hubID)
		}
	}
	return nil
}
