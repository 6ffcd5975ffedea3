package influxdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nerrad567/czone-gateway/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestWriteOptions(t *testing.T) {
	opts := writeOptions(config.InfluxDBConfig{BatchSize: 0, FlushInterval: -1})
	assert.Equal(t, uint(defaultBatchSize), opts.BatchSize())
	assert.Equal(t, uint(defaultFlushInterval*1000), opts.FlushInterval())

	opts = writeOptions(config.InfluxDBConfig{BatchSize: 50, FlushInterval: 2})
	assert.Equal(t, uint(50), opts.BatchSize())
	assert.Equal(t, uint(2000), opts.FlushInterval())
}

func TestConnect_UnreachableServer(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: true, URL: "http://127.0.0.1:1", Bucket: "b", Org: "o"})
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestChannelPoint(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := channelPoint("tank.1", "level", 64.5, ts)

	assert.Equal(t, channelMeasurement, p.Name())
	assert.Equal(t, ts, p.Time())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"device_id": "tank.1", "channel": "level"}, tags)

	fields := p.FieldList()
	if assert.Len(t, fields, 1) {
		assert.Equal(t, "value", fields[0].Key)
		assert.Equal(t, 64.5, fields[0].Value)
	}
}

func TestRecordChannel_NotConnectedIsNoop(t *testing.T) {
	var c *Client
	assert.NotPanics(t, func() { c.RecordChannel("tank.1", "level", 1, time.Now()) })
	assert.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.HealthCheck(context.Background()), ErrNotConnected)
}
