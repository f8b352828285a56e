package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/graymesh/zigbee-core/internal/infrastructure/config"
)

// Client is a single broker connection, one per configured coordinator.
// It layers subscription tracking, reconnect restoration and service
// status publishing on top of paho.mqtt.golang. All methods are safe
// for concurrent use.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.CoordinatorConfig

	mu     sync.RWMutex
	routes map[string]route
	online bool

	cbMu         sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)

	logMu  sync.RWMutex
	logger Logger
}

// Logger is the subset of logging.Logger the client needs. A *slog.Logger
// satisfies it too.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// route records an active subscription so it can be replayed after
// a reconnect.
type route struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives each inbound message. Paho invokes handlers on
// its own goroutines; a returned error is logged and does not affect
// message acknowledgement. Handlers must not block for long.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the coordinator's broker and blocks until the session is
// established or defaultConnectTimeout elapses. The returned client has
// auto-reconnect enabled and a retained LWT registered, so downstream
// consumers of the service status topic see a crash as "offline".
func Connect(cfg config.CoordinatorConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:     cfg,
		options: opts,
		routes:  make(map[string]route),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.brokerUp()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.brokerDown(err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler fires asynchronously and may lag this return.
	// Mark the session up here so IsConnected is truthful immediately;
	// the handler still takes care of resubscription and status.
	c.mu.Lock()
	c.online = true
	c.mu.Unlock()

	return c, nil
}

// brokerUp runs on every successful (re)connection.
func (c *Client) brokerUp() {
	c.mu.Lock()
	c.online = true
	routes := make([]route, 0, len(c.routes))
	for _, r := range c.routes {
		routes = append(routes, r)
	}
	c.mu.Unlock()

	// Replay subscriptions lost with the previous session. Failures here
	// surface through the handlers simply never firing, which the bridge's
	// availability tracking catches.
	for _, r := range routes {
		c.client.Subscribe(r.topic, r.qos, c.dispatch(r.handler))
	}

	c.client.Publish(
		ServiceStatus(c.cfg.Broker.ClientID),
		byte(c.cfg.QoS), true,
		statusPayload(c.cfg.Broker.ClientID, "online", ""),
	)

	c.cbMu.RLock()
	cb := c.onConnect
	c.cbMu.RUnlock()
	if cb != nil {
		cb()
	}
}

// brokerDown runs when paho loses the session.
func (c *Client) brokerDown(err error) {
	c.mu.Lock()
	c.online = false
	c.mu.Unlock()

	c.cbMu.RLock()
	cb := c.onDisconnect
	c.cbMu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

// Close publishes a graceful offline status, then disconnects with a
// short quiesce so in-flight publishes drain. Closing an already
// disconnected client is not an error.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(
			ServiceStatus(c.cfg.Broker.ClientID),
			byte(c.cfg.QoS), true,
			statusPayload(c.cfg.Broker.ClientID, "offline", "graceful_shutdown"),
		)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.mu.Lock()
	c.online = false
	c.mu.Unlock()

	return nil
}

// HealthCheck reports whether the broker session is currently up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known session state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online && c.client.IsConnected()
}

// SetOnConnect registers a callback invoked on every connection,
// including reconnects.
func (c *Client) SetOnConnect(callback func()) {
	c.cbMu.Lock()
	c.onConnect = callback
	c.cbMu.Unlock()
}

// SetOnDisconnect registers a callback invoked when the session drops,
// with the error paho reported.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.cbMu.Lock()
	c.onDisconnect = callback
	c.cbMu.Unlock()
}

// SetLogger attaches a logger for handler errors and recovered panics.
// Without one those conditions are dropped silently.
func (c *Client) SetLogger(logger Logger) {
	c.logMu.Lock()
	c.logger = logger
	c.logMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.logMu.RLock()
	defer c.logMu.RUnlock()
	return c.logger
}

// dispatch adapts a MessageHandler to paho's callback shape, recovering
// panics so one bad payload cannot take down the paho router goroutine.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if log := c.getLogger(); log != nil {
					log.Error("mqtt handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if log := c.getLogger(); log != nil {
				log.Warn("mqtt handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
