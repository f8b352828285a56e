package influxdb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/graymesh/zigbee-core/internal/infrastructure/config"
	"github.com/graymesh/zigbee-core/internal/infrastructure/influxdb"
)

func devConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "zigbeecore-dev-token",
		Org:           "zigbeecore",
		Bucket:        "devices",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip returns a live client against the local dev server, or
// skips when none is running. Most tests here are integration tests.
func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(devConfig())
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

type errorRecorder struct {
	mu  sync.Mutex
	err error
}

func (r *errorRecorder) record(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *errorRecorder) get() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func TestConnectDisabled(t *testing.T) {
	cfg := devConfig()
	cfg.Enabled = false

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	cfg := devConfig()
	cfg.URL = "http://127.0.0.1:59999"

	if _, err := influxdb.Connect(cfg); err == nil {
		t.Fatal("Connect() should fail against a closed port")
	}
}

func TestConnectAndHealth(t *testing.T) {
	client := connectOrSkip(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestWrites(t *testing.T) {
	client := connectOrSkip(t)

	rec := &errorRecorder{}
	client.SetOnError(rec.record)

	writes := []func(){
		func() { client.WritePropertyMetric(101, 204, "temperature", 21.5) },
		func() { client.WriteLinkQuality(101, 204, 87) },
		func() { client.WriteEnergyMetric(101, 205, 150.5, 12.34) },
		// Plugs without an energy register report kWh as 0;
		// the field must be dropped, not stored.
		func() { client.WriteEnergyMetric(101, 205, 100.0, 0) },
		func() {
			client.WritePoint("custom_measurement",
				map[string]string{"source": "test"},
				map[string]interface{}{"value": 99.9, "count": 5})
		},
		func() {
			client.WritePointWithTime("custom_measurement",
				map[string]string{"source": "test-with-time"},
				map[string]interface{}{"value": 88.8},
				time.Now().Add(-time.Hour))
		},
	}
	for _, w := range writes {
		w()
	}
	client.Flush()

	// Batch errors arrive on a goroutine; give the callback a moment.
	time.Sleep(100 * time.Millisecond)

	if err := rec.get(); err != nil {
		t.Errorf("write error = %v", err)
	}
}

func TestClose(t *testing.T) {
	client := connectOrSkip(t)

	client.WritePropertyMetric(101, 204, "temperature", 1.0)

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	// Writes and flushes after Close are silent no-ops.
	client.WritePropertyMetric(101, 204, "temperature", 2.0)
	client.Flush()
}
