// Package influxdb records device state history in InfluxDB v2.
//
// Every state document the bridge publishes can also be written as one
// point. Scalar members become fields; nested objects are flattened with
// dotted keys:
//
//	{"on": true, "brightness": 60, "temperature IN": 21.5}
//	-> device_state,device_id=AA:BB on=true,brightness=60,temperature\ IN=21.5
//
// The measurement defaults to "device_state" and static tags from the
// configuration (a site or hub name) are added to every point.
//
//	sink, err := influxdb.Connect(ctx, cfg.InfluxDB, onError)
//	if err != nil { ... }
//	defer sink.Close()
//	sink.WriteState(tags, state)
package influxdb
