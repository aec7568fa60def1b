package discovery

import "encoding/json"

// Manufacturer is reported for every device.
const Manufacturer = "Elko EP"

// DeviceInfo is the Home Assistant device block. Entities sharing the same
// identifiers are grouped under one device.
type DeviceInfo struct {
	Name         string     `json:"name"`
	Identifiers  []string   `json:"identifiers"`
	Connections  [][]string `json:"connections,omitempty"`
	Manufacturer string     `json:"manufacturer"`
	Model        string     `json:"model,omitempty"`
}

// Payload is a discovery config document. Fields irrelevant to a component
// are left empty and omitted.
type Payload struct {
	Schema   string     `json:"schema,omitempty"`
	Name     string     `json:"name"`
	UniqueID string     `json:"unique_id"`
	Device   DeviceInfo `json:"device"`

	StateTopic        string `json:"state_topic"`
	CommandTopic      string `json:"command_topic,omitempty"`
	AvailabilityTopic string `json:"availability_topic,omitempty"`

	// Basic light / switch
	PayloadOn          string `json:"payload_on,omitempty"`
	PayloadOff         string `json:"payload_off,omitempty"`
	StateOn            string `json:"state_on,omitempty"`
	StateOff           string `json:"state_off,omitempty"`
	StateValueTemplate string `json:"state_value_template,omitempty"`

	// Template light
	CommandOnTemplate  string `json:"command_on_template,omitempty"`
	CommandOffTemplate string `json:"command_off_template,omitempty"`
	StateTemplate      string `json:"state_template,omitempty"`
	BrightnessTemplate string `json:"brightness_template,omitempty"`

	// Sensors
	ValueTemplate     string `json:"value_template,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	Icon              string `json:"icon,omitempty"`
}

// Message is one discovery document and the topic it is published to.
type Message struct {
	Component string
	NodeID    string
	Suffix    string
	Topic     string
	Payload   Payload
}

// JSON encodes the payload.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m.Payload)
}
