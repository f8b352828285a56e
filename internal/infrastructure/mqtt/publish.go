package mqtt

import "fmt"

// maxPayloadSize caps outbound payloads at 1MB, in line with common
// broker defaults. zigbee2mqtt command payloads are a few hundred bytes
// at most, so hitting this indicates a bug upstream.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic at the given QoS. Retained messages
// are stored by the broker and handed to new subscribers, which suits
// state topics; commands and events should not be retained.
//
// The call blocks until the broker acknowledges or defaultPublishTimeout
// elapses. QoS 0 returns as soon as the message is written.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishString publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// PublishRetained publishes a retained message at the coordinator's
// configured default QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
