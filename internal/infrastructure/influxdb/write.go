package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names. Tags carry the platform ids so Flux queries can
// join against the device registry.
const (
	measurementProperties  = "zigbee_properties"
	measurementLinkQuality = "link_quality"
	measurementEnergy      = "energy"
)

// WritePropertyMetric records one numeric property reading, tagged by
// coordinator, device and property name. Values are stored as reported,
// before any display rounding. The write is batched and returns
// immediately; a disconnected client drops the point.
func (c *Client) WritePropertyMetric(coordinatorID, deviceID int, property string, value float64) {
	tags := deviceTags(coordinatorID, deviceID)
	tags["property"] = property
	c.WritePoint(measurementProperties, tags, map[string]interface{}{"value": value})
}

// WriteLinkQuality records a device's radio link quality indicator.
// zigbee2mqtt attaches linkquality to most state messages; tracked over
// time it makes weak spots in the mesh visible.
func (c *Client) WriteLinkQuality(coordinatorID, deviceID int, lqi float64) {
	c.WritePoint(measurementLinkQuality, deviceTags(coordinatorID, deviceID),
		map[string]interface{}{"lqi": lqi})
}

// WriteEnergyMetric records instantaneous power draw and, when known,
// cumulative energy from a metering plug. Pass energyKWh as 0 for plugs
// that only report power; the field is then omitted rather than written
// as a bogus zero reading.
func (c *Client) WriteEnergyMetric(coordinatorID, deviceID int, powerWatts, energyKWh float64) {
	fields := map[string]interface{}{"power_watts": powerWatts}
	if energyKWh > 0 {
		fields["energy_kwh"] = energyKWh
	}
	c.WritePoint(measurementEnergy, deviceTags(coordinatorID, deviceID), fields)
}

// WritePoint records an arbitrary measurement stamped with the current
// time, for data the typed helpers do not cover.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime records an arbitrary measurement with an explicit
// timestamp, for backfill or replayed data.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

func deviceTags(coordinatorID, deviceID int) map[string]string {
	return map[string]string{
		"coordinator_id": strconv.Itoa(coordinatorID),
		"device_id":      strconv.Itoa(deviceID),
	}
}
