package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// channelMeasurement is the measurement every channel value is written to.
const channelMeasurement = "czone_channel"

// RecordChannel writes one live channel value.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Calls on a closed or nil client are dropped.
//
// Parameters:
//   - deviceID: LiveDevices id (e.g. "tank.1", "ac.3")
//   - channel: Channel key within the device (e.g. "level", "voltage.0")
//   - value: The numeric value
//   - ts: Observation time
func (c *Client) RecordChannel(deviceID, channel string, value float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(channelPoint(deviceID, channel, value, ts))
}

func channelPoint(deviceID, channel string, value float64, ts time.Time) *write.Point {
	return write.NewPoint(
		channelMeasurement,
		map[string]string{
			"device_id": deviceID,
			"channel":   channel,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	)
}
