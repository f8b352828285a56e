package mqtt

import (
	"strings"
	"testing"

	"github.com/graymesh/zigbee-core/internal/infrastructure/config"
)

func testCoordinatorConfig() config.CoordinatorConfig {
	return config.CoordinatorConfig{
		ID:        101,
		RootTopic: "zigbee2mqtt",
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "zigbeecore-101",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestBuildClientOptions(t *testing.T) {
	t.Run("plain tcp", func(t *testing.T) {
		opts := buildClientOptions(testCoordinatorConfig())

		if len(opts.Servers) != 1 {
			t.Fatalf("servers = %d, want 1", len(opts.Servers))
		}
		if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
			t.Errorf("broker URL = %q, want tcp://127.0.0.1:1883", got)
		}
		if opts.ClientID != "zigbeecore-101" {
			t.Errorf("client id = %q", opts.ClientID)
		}
		if !opts.AutoReconnect {
			t.Error("expected auto-reconnect enabled")
		}
	})

	t.Run("tls scheme", func(t *testing.T) {
		cfg := testCoordinatorConfig()
		cfg.Broker.TLS = true
		cfg.Broker.Port = 8883

		opts := buildClientOptions(cfg)

		if got := opts.Servers[0].String(); got != "ssl://127.0.0.1:8883" {
			t.Errorf("broker URL = %q, want ssl://127.0.0.1:8883", got)
		}
		if opts.TLSConfig == nil {
			t.Fatal("expected TLS config to be set")
		}
	})

	t.Run("credentials", func(t *testing.T) {
		cfg := testCoordinatorConfig()
		cfg.Auth.Username = "user"
		cfg.Auth.Password = "pass"

		opts := buildClientOptions(cfg)

		if opts.Username != "user" || opts.Password != "pass" {
			t.Errorf("credentials not applied: %q/%q", opts.Username, opts.Password)
		}
	})
}

func TestConfigureLWT(t *testing.T) {
	cfg := testCoordinatorConfig()
	opts := buildClientOptions(cfg)

	configureLWT(opts, cfg.Broker.ClientID)

	if !opts.WillEnabled {
		t.Fatal("expected will to be enabled")
	}
	if opts.WillTopic != "zigbeecore/status/zigbeecore-101" {
		t.Errorf("will topic = %q", opts.WillTopic)
	}
	if !strings.Contains(string(opts.WillPayload), `"status":"offline"`) {
		t.Errorf("will payload = %q, want offline status", opts.WillPayload)
	}
	if !opts.WillRetained {
		t.Error("expected will to be retained")
	}
}
