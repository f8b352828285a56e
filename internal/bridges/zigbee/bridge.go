package zigbee

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/graymesh/zigbee-core/internal/device"
	"github.com/graymesh/zigbee-core/internal/infrastructure/config"
	"github.com/graymesh/zigbee-core/internal/infrastructure/mqtt"
)

// callbackTimeout bounds directory writes made from MQTT connection
// callbacks, which carry no caller context.
const callbackTimeout = 5 * time.Second

// MQTTClient is the broker surface the bridge needs. Satisfied by
// *mqtt.Client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	// Config is the coordinator's YAML configuration block.
	Config config.CoordinatorConfig

	// Client is the MQTT connection to this coordinator's broker.
	Client MQTTClient

	// Directory is the platform device registry.
	Directory Directory

	// Telemetry receives numeric property metrics. Optional.
	Telemetry Telemetry

	// Logger receives bridge log output. Optional.
	Logger Logger

	// QueueSize overrides the inbound message queue depth. Zero uses
	// the default.
	QueueSize int
}

// Bridge connects one zigbee2mqtt coordinator to the platform device
// directory. It subscribes to the coordinator's root topic, classifies
// and orders every inbound message, and routes each one to the
// topology tracker, the property mapper or the availability handler.
type Bridge struct {
	cfg    config.CoordinatorConfig
	client MQTTClient
	dir    Directory
	log    Logger

	topics     mqtt.Topics
	topo       *Topology
	filter     *TopicFilter
	classifier *Classifier
	mapper     *Mapper
	bridge     *BridgeTopics
	commander  *Commander
	dispatcher *Dispatcher

	running   atomic.Bool
	connected atomic.Bool
	stopOnce  sync.Once
}

// NewBridge creates a bridge for one coordinator. Start must be called
// before any messages flow.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Client == nil {
		return nil, errors.New("zigbee: mqtt client is required")
	}
	if opts.Directory == nil {
		return nil, errors.New("zigbee: device directory is required")
	}
	if opts.Config.ID <= 0 {
		return nil, fmt.Errorf("zigbee: coordinator id must be positive, got %d", opts.Config.ID)
	}

	log := opts.Logger
	if log == nil {
		log = nopLogger{}
	}

	topics := mqtt.Topics{Root: opts.Config.RootTopic}
	topo := NewTopology()
	filter := NewTopicFilter(opts.Config.TopicFilter)
	qos := byte(opts.Config.QoS)

	b := &Bridge{
		cfg:    opts.Config,
		client: opts.Client,
		dir:    opts.Directory,
		log:    log,
		topics: topics,
		topo:   topo,
		filter: filter,
	}

	b.classifier = NewClassifier(opts.Config.ID, topics.Root, topo)
	b.mapper = NewMapper(opts.Config.ID, opts.Directory, topo, filter, opts.Telemetry, log)
	b.bridge = NewBridgeTopics(opts.Config.ID, opts.Directory, topo, log)
	b.commander = NewCommander(opts.Client, topics, qos, opts.Directory, topo, filter, log)
	b.dispatcher = NewDispatcher(opts.QueueSize, b.route, log)

	return b, nil
}

// Start subscribes to the coordinator's topic tree and begins
// processing messages. The supplied context bounds the worker's
// lifetime alongside Stop.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return errors.New("zigbee: bridge already started")
	}

	b.client.SetOnConnect(b.handleConnect)
	b.client.SetOnDisconnect(b.handleDisconnect)

	b.dispatcher.Start(ctx)

	if err := b.client.Subscribe(b.topics.All(), byte(b.cfg.QoS), b.receive); err != nil {
		b.dispatcher.Stop()
		b.running.Store(false)
		return fmt.Errorf("subscribe %s: %w", b.topics.All(), err)
	}

	b.log.Info("zigbee bridge started",
		"coordinator", b.cfg.Name,
		"coordinator_id", b.cfg.ID,
		"root_topic", b.topics.Root,
	)
	return nil
}

// Stop drains the message queue and releases bridge resources. Safe to
// call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.dispatcher.Stop()
		b.mapper.Close()
		b.running.Store(false)
		b.log.Info("zigbee bridge stopped", "coordinator", b.cfg.Name)
	})
}

// Commander returns the command publisher for this coordinator.
func (b *Bridge) Commander() *Commander {
	return b.commander
}

// Topology returns the mesh topology tracker for this coordinator.
func (b *Bridge) Topology() *Topology {
	return b.topo
}

// QueueDepth reports the number of messages waiting to be processed.
func (b *Bridge) QueueDepth() int {
	return b.dispatcher.QueueDepth()
}

// receive is the MQTT subscription callback. It classifies and queues
// the message; all processing happens on the dispatcher worker so the
// paho receive path never blocks.
func (b *Bridge) receive(topic string, payload []byte) error {
	msg := b.classifier.Classify(topic, payload)
	if msg.Class == ClassDiscard {
		return nil
	}
	if err := b.dispatcher.Enqueue(msg); err != nil {
		b.log.Warn("message dropped",
			"topic", topic,
			"queue_depth", b.dispatcher.QueueDepth(),
			"error", err,
		)
	}
	return nil
}

// route dispatches one classified message to its handler.
func (b *Bridge) route(ctx context.Context, msg Message) {
	switch msg.Class {
	case ClassBridge:
		b.bridge.Handle(ctx, msg)
	case ClassGroup:
		if msg.Suffix == "" {
			b.mapper.HandleGroupMessage(ctx, msg)
		}
	case ClassDevice:
		switch msg.Suffix {
		case "":
			b.mapper.HandleDeviceMessage(ctx, msg)
		case mqtt.SuffixAvailability:
			b.mapper.HandleAvailability(ctx, msg)
		case mqtt.SuffixSet, mqtt.SuffixGet:
			// Echoes of our own command publishes.
		default:
			b.log.Debug("unhandled device topic", "topic", msg.Topic)
		}
	}
}

// handleConnect records the broker connection on the coordinator
// device and clears any disconnect error state.
func (b *Bridge) handleConnect() {
	reconnect := b.connected.Swap(true)
	if reconnect {
		b.log.Info("broker reconnected", "coordinator", b.cfg.Name)
	} else {
		b.log.Info("broker connected", "coordinator", b.cfg.Name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	if err := b.dir.SetErrorState(ctx, b.cfg.ID, ""); err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		b.log.Warn("clear coordinator error state failed", "error", err)
	}
	b.setConnectionState(ctx, "connected")
}

// handleDisconnect flags the coordinator device until the broker
// connection returns.
func (b *Bridge) handleDisconnect(err error) {
	b.connected.Store(false)
	b.log.Warn("broker connection lost", "coordinator", b.cfg.Name, "error", err)

	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	if serr := b.dir.SetErrorState(ctx, b.cfg.ID, "disconnected"); serr != nil && !errors.Is(serr, device.ErrDeviceNotFound) {
		b.log.Warn("set coordinator error state failed", "error", serr)
	}
	b.setConnectionState(ctx, "disconnected")
}

func (b *Bridge) setConnectionState(ctx context.Context, state string) {
	updates := []device.StateUpdate{{Key: "connectionState", Value: state, UI: state}}
	if err := b.dir.BatchUpdateStates(ctx, b.cfg.ID, updates); err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		b.log.Warn("coordinator state update failed", "error", err)
	}
}
