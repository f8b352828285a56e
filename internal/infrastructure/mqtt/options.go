package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/graymesh/zigbee-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second

	// Quiesce handed to paho's Disconnect, in milliseconds.
	defaultDisconnectQuiesce = 1000

	defaultKeepAlive = 60 * time.Second

	maxQoS = 2
)

// buildClientOptions translates a coordinator's broker config into paho
// options: broker URL with tcp or ssl scheme, client identity, optional
// credentials, and reconnect backoff bounded by the configured delays.
// Sessions are always clean; subscription state lives in the Client and
// is replayed on reconnect rather than persisted at the broker.
func buildClientOptions(cfg config.CoordinatorConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	return opts
}

// configureLWT registers a retained will on the service status topic so
// the broker announces "offline" on our behalf if the session dies
// without a clean disconnect.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	opts.SetWill(
		ServiceStatus(clientID),
		statusPayload(clientID, "offline", "unexpected_disconnect"),
		1, true,
	)
}

// statusPayload builds the JSON body published on the service status
// topic. Reason is omitted for online announcements.
func statusPayload(clientID, status, reason string) string {
	body := struct {
		Status    string `json:"status"`
		ClientID  string `json:"client_id"`
		Reason    string `json:"reason,omitempty"`
		Timestamp string `json:"timestamp"`
	}{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	b, err := json.Marshal(body)
	if err != nil {
		// Marshal of a flat string struct cannot fail.
		return `{"status":"` + status + `"}`
	}
	return string(b)
}
