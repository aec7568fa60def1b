// Package mqtt provides the bridge's MQTT broker connection.
//
// This package manages:
//   - Connection to the broker from a URL with optional credentials
//   - Subscriptions to device command topics, made before the link is
//     reported as connected
//   - A bounded inbound queue fed from paho's network goroutine
//   - Retained publishing of status and discovery documents
//   - Last Will and Testament on the bridge availability topic
//
// # Lifecycle
//
// Automatic reconnection is disabled. A Client goes through
//
//	Disconnected → Connecting → Connected → Disconnected
//
// exactly once. When the broker drops the link, Lost() is closed and the
// session that owns the client is torn down; the supervisor builds a new
// session (fresh hub login, device list and broker link) after a pause.
//
// # Usage
//
//	topics := mqtt.Topics{Prefix: "eLan"}
//	client, err := mqtt.Connect(ctx, cfg.MQTT, mqtt.Options{
//	    AvailabilityTopic: topics.Availability(),
//	    Subscriptions:     []string{topics.DeviceCommand("AA:BB")},
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	for {
//	    select {
//	    case msg := <-client.Messages():
//	        handle(msg.Topic, msg.Payload)
//	    case <-client.Lost():
//	        return client.Err()
//	    }
//	}
package mqtt
