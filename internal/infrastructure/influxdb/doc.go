// Package influxdb records CZone channel telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every numeric value
// merged from a state snapshot can be written as one point in the
// "czone_channel" measurement, tagged by device and channel, so the vessel's
// tank levels, battery voltages and engine data keep a history.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.RecordChannel("tank.1", "level", 64.0, time.Now())
//
// Writes are non-blocking and batched (batch_size, flush_interval).
// Asynchronous write failures are delivered to the SetOnError callback.
package influxdb
