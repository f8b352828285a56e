package zigbee

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/graymesh/zigbee-core/internal/device"
	"github.com/graymesh/zigbee-core/internal/infrastructure/mqtt"
)

// Publisher is the outbound MQTT surface the commander needs.
// Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Commander publishes device commands onto a coordinator's mesh.
type Commander struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
	dir    Directory
	topo   *Topology
	filter *TopicFilter
	log    Logger
}

// NewCommander creates a command publisher for one coordinator.
func NewCommander(pub Publisher, topics mqtt.Topics, qos byte, dir Directory, topo *Topology, filter *TopicFilter, log Logger) *Commander {
	if log == nil {
		log = nopLogger{}
	}
	if filter == nil {
		filter = NewTopicFilter(nil)
	}
	return &Commander{
		pub:    pub,
		topics: topics,
		qos:    qos,
		dir:    dir,
		topo:   topo,
		filter: filter,
		log:    log,
	}
}

// commandTarget is a resolved publish destination for one device.
type commandTarget struct {
	friendlyName string
	endpoint     string // "l2", "left"; empty for single-channel devices
	dev          *device.Device
	archetype    device.Archetype // archetype governing the payload shape
}

// resolve maps a platform device id onto its mesh friendly name.
// Secondary endpoint devices publish against their parent's name with
// an endpoint-suffixed state key.
func (c *Commander) resolve(ctx context.Context, deviceID int) (commandTarget, error) {
	dev, err := c.dir.GetDevice(ctx, deviceID)
	if err != nil {
		return commandTarget{}, err
	}

	t := commandTarget{dev: dev, archetype: dev.Type}

	if dev.Config.Endpoint != "" && dev.Config.ParentID != 0 {
		parent, err := c.dir.GetDevice(ctx, dev.Config.ParentID)
		if err != nil {
			return commandTarget{}, fmt.Errorf("%w: parent %d", ErrUnknownDevice, dev.Config.ParentID)
		}
		t.endpoint = dev.Config.Endpoint
		t.archetype = parent.Type
		dev = parent
	}

	if mesh, ok := c.topo.Device(dev.Address); ok {
		t.friendlyName = mesh.FriendlyName
		return t, nil
	}
	for _, g := range c.topo.Groups() {
		if g.DeviceID == dev.ID {
			t.friendlyName = g.FriendlyName
			return t, nil
		}
	}

	// Topology may not have arrived yet; the stored name is the best
	// guess and matches the friendly name for directory-seeded devices.
	t.friendlyName = dev.Name
	return t, nil
}

// stateKey returns the payload key switching this target on or off.
func (t commandTarget) stateKey() string {
	if t.endpoint != "" {
		return "state_" + t.endpoint
	}
	return "state"
}

// TurnOn switches a device on. Blinds interpret on as open.
func (c *Commander) TurnOn(ctx context.Context, deviceID int) error {
	t, err := c.resolve(ctx, deviceID)
	if err != nil {
		return err
	}
	if t.archetype == device.ArchetypeBlind {
		return c.publishJSON(t, map[string]any{"state": "OPEN"})
	}
	return c.publishJSON(t, map[string]any{t.stateKey(): "ON"})
}

// TurnOff switches a device off. Blinds interpret off as close.
func (c *Commander) TurnOff(ctx context.Context, deviceID int) error {
	t, err := c.resolve(ctx, deviceID)
	if err != nil {
		return err
	}
	if t.archetype == device.ArchetypeBlind {
		return c.publishJSON(t, map[string]any{"state": "CLOSE"})
	}
	return c.publishJSON(t, map[string]any{t.stateKey(): "OFF"})
}

// Toggle flips a device's on/off state.
func (c *Commander) Toggle(ctx context.Context, deviceID int) error {
	t, err := c.resolve(ctx, deviceID)
	if err != nil {
		return err
	}
	return c.publishJSON(t, map[string]any{t.stateKey(): "TOGGLE"})
}

// SetBrightness sets a dimmer to a percentage level.
func (c *Commander) SetBrightness(ctx context.Context, deviceID, percent int) error {
	t, err := c.resolve(ctx, deviceID)
	if err != nil {
		return err
	}
	if percent <= 0 {
		return c.publishJSON(t, map[string]any{"state": "OFF"})
	}
	return c.publishJSON(t, map[string]any{"brightness": brightnessPercentTo255(percent)})
}

// BrightenBy raises brightness by a relative percentage step.
func (c *Commander) BrightenBy(ctx context.Context, deviceID, percent int) error {
	t, err := c.resolve(ctx, deviceID)
	if err != nil {
		return err
	}
	return c.publishJSON(t, map[string]any{"brightness_step": brightnessPercentTo255(percent)})
}

// DimBy lowers brightness by a relative percentage step. Dimming past
// zero also publishes an explicit off, since a step to zero leaves
// some devices lit at their minimum level.
func (c *Commander) DimBy(ctx context.Context, deviceID, percent int) error {
	t, err := c.resolve(ctx, deviceID)
	if err != nil {
		return err
	}
	if err := c.publishJSON(t, map[string]any{"brightness_step": -brightnessPercentTo255(percent)}); err != nil {
		return err
	}

	if current, ok := coerceFloat(t.dev.StateValue("brightnessLevel")); ok && current-float64(percent) <= 0 {
		return c.publishJSON(t, map[string]any{"state": "OFF"})
	}
	return nil
}

// SetPosition moves a blind to a percentage position.
func (c *Commander) SetPosition(ctx context.Context, deviceID, percent int) error {
	t, err := c.resolve(ctx, deviceID)
	if err != nil {
		return err
	}
	if t.archetype != device.ArchetypeBlind {
		return fmt.Errorf("%w: %s does not take positions", ErrUnsupportedArchetype, t.archetype)
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return c.publishJSON(t, map[string]any{"position": percent})
}

// SetColorRGB sets an RGB colour from percentage channel levels.
func (c *Commander) SetColorRGB(ctx context.Context, deviceID int, redPct, greenPct, bluePct int) error {
	t, err := c.resolve(ctx, deviceID)
	if err != nil {
		return err
	}
	scale := func(pct int) int {
		if pct <= 0 {
			return 0
		}
		if pct >= 100 {
			return 255
		}
		return int(float64(pct) / 100 * 255)
	}
	return c.publishJSON(t, map[string]any{
		"color": map[string]any{
			"r": scale(redPct), "g": scale(greenPct), "b": scale(bluePct),
		},
	})
}

// SetWhiteLevel sets white-channel brightness, first forcing the lamp
// into colour-temperature mode at its current white temperature.
func (c *Commander) SetWhiteLevel(ctx context.Context, deviceID, percent int) error {
	t, err := c.resolve(ctx, deviceID)
	if err != nil {
		return err
	}

	if kelvin, ok := coerceFloat(t.dev.StateValue("whiteTemperature")); ok && kelvin > 0 {
		if err := c.publishJSON(t, map[string]any{"color_temp": kelvinToMired(int(kelvin))}); err != nil {
			return err
		}
	}
	return c.publishJSON(t, map[string]any{"brightness": brightnessPercentTo255(percent)})
}

// SetWhiteTemperature sets colour temperature from a Kelvin value,
// snapped to the nearest rounded step.
func (c *Commander) SetWhiteTemperature(ctx context.Context, deviceID, kelvin int) error {
	t, err := c.resolve(ctx, deviceID)
	if err != nil {
		return err
	}
	entry := nearestRoundedKelvin(kelvin)
	return c.publishJSON(t, map[string]any{"color_temp": kelvinToMired(entry.Kelvin)})
}

// RequestStatus asks a device to republish its current state.
func (c *Commander) RequestStatus(ctx context.Context, deviceID int) error {
	t, err := c.resolve(ctx, deviceID)
	if err != nil {
		return err
	}
	payload := []byte(`{"state": ""}`)
	topic := c.topics.DeviceGet(t.friendlyName)
	if err := c.pub.Publish(topic, payload, c.qos, false); err != nil {
		return fmt.Errorf("publish status request: %w", err)
	}
	c.logPublish(t.friendlyName, topic, payload)
	return nil
}

func (c *Commander) publishJSON(t commandTarget, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	topic := c.topics.DeviceSet(t.friendlyName)
	if err := c.pub.Publish(topic, body, c.qos, false); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}
	c.logPublish(t.friendlyName, topic, body)
	return nil
}

func (c *Commander) logPublish(friendlyName, topic string, payload []byte) {
	if c.filter.ShouldLog(friendlyName) {
		c.log.Debug("command published", "topic", topic, "payload", string(payload))
	}
}
