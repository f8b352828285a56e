// Package influxdb stores mesh telemetry as time series: numeric device
// properties such as temperature and humidity, link quality across the
// mesh, and power and energy readings from metering plugs.
//
// It wraps the official influxdb-client-go v2 library. Points go
// through the non-blocking batched write API, sized by batch_size and
// flush_interval in config.yaml, so high-frequency sensor traffic never
// blocks the MQTT message path. Batch failures arrive asynchronously on
// the SetOnError callback.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePropertyMetric(101, 204, "temperature", 21.5)
//
// Telemetry is optional. With influxdb disabled in config, Connect
// returns ErrDisabled and the rest of the service runs without metrics.
package influxdb
