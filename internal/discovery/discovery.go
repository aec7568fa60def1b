package discovery

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/nerrad567/elan2mqtt/internal/device"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/mqtt"
)

// Home Assistant components.
const (
	ComponentLight  = "light"
	ComponentSwitch = "switch"
	ComponentSensor = "sensor"
)

// DefaultBrightnessMax is the dimmer level range assumed when the hub does
// not declare one.
const DefaultBrightnessMax = 100

const (
	uniqueIDPrefix = "eLan-"
	celsius        = "°C"
)

// Options configures document generation.
type Options struct {
	Topics mqtt.Topics

	// Availability adds the bridge availability topic to every document.
	Availability bool
}

// Product type tables. Matching is exact unless noted.
var (
	dimmerModels      = []string{"RFDA-11B"}
	thermostatModels  = []string{"RFSTI-11G"}
	thermometerModels = []string{"RFTI-10B"}

	relayModels = []string{
		"RFSA-11B", "RFSA-61B", "RFSA-61M", "RFSA-62B", "RFSA-66M",
		"RFSAI-61B", "RFSAI-62B", "RFSC-61", "RFUS-61",
	}
)

// detectorFamily maps a product type prefix to its detect sensor icon.
type detectorFamily struct {
	prefix   string
	keyword  string
	icon     string
	doorIcon string
}

// Families are matched in order, first by product type prefix, then by the
// keyword appearing in the device type.
var detectorFamilies = []detectorFamily{
	{prefix: "RFWD-", keyword: "window", icon: "mdi:window-open", doorIcon: "mdi:door-open"},
	{prefix: "RFSD-", keyword: "smoke", icon: "mdi:smoke-detector"},
	{prefix: "RFMD-", keyword: "motion", icon: "mdi:motion-sensor"},
	{prefix: "RFSF-", keyword: "flood", icon: "mdi:waves"},
}

type extraSensor struct {
	suffix   string
	icon     string
	template string
}

var (
	alarmSensor   = extraSensor{"alarm", "mdi:alarm-light", fmt.Sprintf(flagTemplate, "alarm")}
	tamperSensor  = extraSensor{"tamper", "mdi:gesture-tap", tamperTemplate}
	automatSensor = extraSensor{"automat", "mdi:arrow-decision-auto", fmt.Sprintf(flagTemplate, "automat")}
	disarmSensor  = extraSensor{"disarm", "mdi:lock-alert", fmt.Sprintf(flagTemplate, "disarm")}
)

var detectorExtras = map[string][]extraSensor{
	"RFWD-100": {alarmSensor, tamperSensor, automatSensor, disarmSensor},
	"RFSF-1B":  {alarmSensor, automatSensor, disarmSensor},
}

// Discover returns the discovery documents for a device, in publish order.
// A device that matches no class yields nil.
func Discover(d *device.Device, opts Options) []Message {
	g := generator{dev: d, opts: opts}

	var out []Message
	if isLight(d) {
		out = append(out, g.light()...)
	} else if isSwitch(d) {
		out = append(out, g.switchDoc())
	}
	if isThermostat(d) {
		out = append(out, g.thermostat()...)
	}
	if isThermometer(d) {
		out = append(out, g.temperatures("thermometer")...)
	}
	if fam, ok := detectorOf(d); ok {
		out = append(out, g.detector(fam)...)
	}
	return out
}

// BrightnessScale is the factor between Home Assistant's 0-255 brightness
// and the hub's 0-max level.
func BrightnessScale(maxLevel float64) float64 {
	if maxLevel <= 0 {
		maxLevel = DefaultBrightnessMax
	}
	return maxLevel / 255
}

func productType(d *device.Device) string {
	if d.ProductType == "" {
		return device.DefaultProductType
	}
	return d.ProductType
}

func isLight(d *device.Device) bool {
	t := strings.ToLower(d.Type)
	return strings.Contains(t, "light") || strings.Contains(t, "lamp") ||
		slices.Contains(dimmerModels, productType(d))
}

func isDimmer(d *device.Device) bool {
	return d.HasPrimaryAction("brightness") || slices.Contains(dimmerModels, productType(d))
}

func isSwitch(d *device.Device) bool {
	if !d.HasPrimaryAction("on") {
		return false
	}
	return strings.Contains(strings.ToLower(d.Type), "appliance") ||
		slices.Contains(relayModels, productType(d))
}

func isThermostat(d *device.Device) bool {
	return strings.EqualFold(d.Type, "heating") || slices.Contains(thermostatModels, productType(d))
}

func isThermometer(d *device.Device) bool {
	return strings.EqualFold(d.Type, "thermometer") || slices.Contains(thermometerModels, productType(d))
}

// detectorOf reports whether d is a detector and its family. A detector of
// unknown family has an empty icon.
func detectorOf(d *device.Device) (detectorFamily, bool) {
	pt := productType(d)
	for _, fam := range detectorFamilies {
		if strings.HasPrefix(pt, fam.prefix) {
			return fam, true
		}
	}
	t := strings.ToLower(d.Type)
	if !strings.Contains(t, "detector") {
		return detectorFamily{}, false
	}
	for _, fam := range detectorFamilies {
		if strings.Contains(t, fam.keyword) {
			return fam, true
		}
	}
	return detectorFamily{}, true
}

type generator struct {
	dev  *device.Device
	opts Options
}

func (g generator) id() string { return g.dev.ID.String() }

func (g generator) deviceInfo(group string) DeviceInfo {
	info := DeviceInfo{
		Name:         g.dev.Name(),
		Identifiers:  []string{uniqueIDPrefix + group + "-" + g.id()},
		Manufacturer: Manufacturer,
		Model:        g.dev.ProductType,
	}
	if g.dev.ID.Kind == device.KindMAC {
		info.Connections = [][]string{{"mac", g.id()}}
	}
	return info
}

func (g generator) base(group, name, suffix string) Payload {
	uid := uniqueIDPrefix + g.id()
	if suffix != "" {
		uid += "-" + suffix
	}
	p := Payload{
		Name:       name,
		UniqueID:   uid,
		Device:     g.deviceInfo(group),
		StateTopic: g.dev.StatusTopic,
	}
	if g.opts.Availability {
		p.AvailabilityTopic = g.opts.Topics.Availability()
	}
	return p
}

func (g generator) message(component, suffix string, p Payload) Message {
	return Message{
		Component: component,
		NodeID:    g.id(),
		Suffix:    suffix,
		Topic:     g.opts.Topics.Discovery(component, g.id(), suffix),
		Payload:   p,
	}
}

func (g generator) light() []Message {
	var out []Message
	if g.dev.HasPrimaryAction("on") {
		p := g.base("light", g.dev.Name(), "")
		p.Schema = "basic"
		p.CommandTopic = g.dev.ControlTopic
		p.PayloadOn = onPayload
		p.PayloadOff = offPayload
		p.StateValueTemplate = lightStateValueTemplate
		out = append(out, g.message(ComponentLight, "", p))
	}
	if isDimmer(g.dev) {
		maxLevel := g.dev.ActionMax("brightness", DefaultBrightnessMax)
		if maxLevel <= 0 {
			maxLevel = DefaultBrightnessMax
		}
		scale := formatNumber(BrightnessScale(maxLevel))

		p := g.base("light", g.dev.Name(), "")
		p.Schema = "template"
		p.CommandTopic = g.dev.ControlTopic
		p.CommandOnTemplate = fmt.Sprintf(dimmerCommandOnTemplate, scale, formatNumber(maxLevel))
		p.CommandOffTemplate = dimmerCommandOffTemplate
		p.StateTemplate = dimmerStateTemplate
		p.BrightnessTemplate = fmt.Sprintf(dimmerBrightnessTemplate, scale)
		out = append(out, g.message(ComponentLight, "", p))
	}
	return out
}

func (g generator) switchDoc() Message {
	p := g.base("switch", g.dev.Name(), "")
	p.CommandTopic = g.dev.ControlTopic
	p.PayloadOn = onPayload
	p.PayloadOff = offPayload
	p.ValueTemplate = switchValueTemplate
	p.StateOn = "ON"
	p.StateOff = "OFF"
	return g.message(ComponentSwitch, "", p)
}

// temperatures emits the IN and OUT temperature sensors.
func (g generator) temperatures(group string) []Message {
	out := make([]Message, 0, 2)
	for _, side := range []string{"IN", "OUT"} {
		p := g.base(group, g.dev.Name()+"-"+side, side)
		p.DeviceClass = "temperature"
		p.StateClass = "measurement"
		p.UnitOfMeasurement = celsius
		p.ValueTemplate = fmt.Sprintf(temperatureTemplate, "temperature "+side)
		out = append(out, g.message(ComponentSensor, side, p))
	}
	return out
}

func (g generator) thermostat() []Message {
	out := g.temperatures("thermostat")
	p := g.base("thermostat", g.dev.Name()+"-ON", "ON")
	p.ValueTemplate = fmt.Sprintf(flagTemplate, "on")
	return append(out, g.message(ComponentSensor, "ON", p))
}

func (g generator) detector(fam detectorFamily) []Message {
	icon := fam.icon
	if fam.doorIcon != "" && strings.Contains(strings.ToLower(g.dev.Label), "door") {
		icon = fam.doorIcon
	}

	detect := g.base("detector", g.dev.Name(), "")
	detect.Icon = icon
	detect.ValueTemplate = fmt.Sprintf(flagTemplate, "detect")

	battery := g.base("detector", g.dev.Name()+"-battery", "battery")
	battery.DeviceClass = "battery"
	battery.UnitOfMeasurement = "%"
	battery.ValueTemplate = batteryTemplate

	out := []Message{
		g.message(ComponentSensor, "", detect),
		g.message(ComponentSensor, "battery", battery),
	}
	for _, extra := range detectorExtras[productType(g.dev)] {
		p := g.base("detector", g.dev.Name()+"-"+extra.suffix, extra.suffix)
		p.Icon = extra.icon
		p.ValueTemplate = extra.template
		out = append(out, g.message(ComponentSensor, extra.suffix, p))
	}
	return out
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
