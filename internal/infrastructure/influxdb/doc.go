// Package influxdb writes device transitions to InfluxDB v2 as a time
// series, so valve and pump activity can be graphed next to other bench
// telemetry.
//
// Each applied transition becomes one point in the device_transitions
// measurement, tagged by device and kind. Writes go through the client's
// non-blocking batched WriteAPI; failures arrive on the SetOnError
// callback instead of being returned.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	bus.Subscribe("influxdb", client.Handle)
package influxdb
