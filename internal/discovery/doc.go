// Package discovery builds Home Assistant MQTT discovery documents for hub
// devices.
//
// Classification is table driven and has no side effects:
//
//	msgs := discovery.Discover(dev, discovery.Options{Topics: topics})
//	for _, m := range msgs {
//	    body, _ := m.JSON()
//	    broker.Publish(m.Topic, body, qos, true)
//	}
//
// A light that reports both "on" and "brightness" yields two documents on the
// same topic, the basic schema first and the template schema second. The
// retained template document is the one Home Assistant keeps.
package discovery
