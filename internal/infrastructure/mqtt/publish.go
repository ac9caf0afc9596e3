package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxPayloadSize caps a single message at 1 MiB.
const maxPayloadSize = 1 << 20

// commandTopicPrefix matches every raillogic/command/... topic.
const commandTopicPrefix = TopicPrefix + "/command/"

// Publish sends payload to topic and waits for the broker to acknowledge
// it (QoS 1 and 2) or for the publish timeout.
//
// Command topics (raillogic/command/...) are never retained; Publish
// returns ErrRetainedCommand for them. Status and health topics usually
// are, so a gateway that connects later sees the current value.
//
// Example:
//
//	topic := mqtt.Topics{}.Command("cs1", mqtt.CommandAccessory)
//	err := client.Publish(topic, []byte(`{"address":5,"state":1}`), 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkPublish(topic, payload, qos, retained); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.publishFailed.Add(1)
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.publishFailed.Add(1)
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	c.published.Add(1)
	return nil
}

// PublishJSON encodes v and publishes it.
func (c *Client) PublishJSON(topic string, v any, qos byte, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %T: %w", ErrPublishFailed, v, err)
	}
	return c.Publish(topic, payload, qos, retained)
}

// checkPublish validates a publish before the connection is consulted.
func checkPublish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case retained && strings.HasPrefix(topic, commandTopicPrefix):
		return fmt.Errorf("%w: %s", ErrRetainedCommand, topic)
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	return nil
}
