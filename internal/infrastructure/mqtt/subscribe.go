package mqtt

import (
	"fmt"
	"slices"
)

// Subscribe registers handler for a topic pattern. Patterns may use the
// MQTT wildcards, for example raillogic/feedback/+/+ for every station
// and pin, or raillogic/# for everything.
//
// The subscription is remembered and restored after a reconnect.
// Subscribing the same pattern again replaces its handler. Handlers run
// on paho's goroutines; a returned error is logged and a panic recovered.
//
// Example:
//
//	err := client.Subscribe(mqtt.Topics{}.AllFeedbacks(), 1,
//	    func(topic string, payload []byte) error {
//	        station, pin, err := mqtt.Topics{}.ParseFeedback(topic)
//	        ...
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: %s: handler cannot be nil", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.track(subscription{topic: topic, qos: qos, handler: handler})

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	var err error
	if !token.WaitTimeout(defaultPublishTimeout) {
		err = fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, topic, defaultPublishTimeout)
	} else if tokenErr := token.Error(); tokenErr != nil {
		err = fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, tokenErr)
	}
	if err != nil {
		c.untrack(topic)
		return err
	}
	return nil
}

// Unsubscribe drops the subscription for the exact pattern given to
// Subscribe. Messages already in flight may still reach the handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.untrack(topic)

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrUnsubscribeFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

// Subscriptions returns the tracked patterns in sorted order.
func (c *Client) Subscriptions() []string {
	c.subMu.RLock()
	topics := make([]string, 0, len(c.subscriptions))
	for topic := range c.subscriptions {
		topics = append(topics, topic)
	}
	c.subMu.RUnlock()

	slices.Sort(topics)
	return topics
}

// HasSubscription reports whether pattern is tracked. It compares the
// pattern string; it does not match wildcards.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}

func (c *Client) track(sub subscription) {
	c.subMu.Lock()
	if c.subscriptions == nil {
		c.subscriptions = make(map[string]subscription)
	}
	c.subscriptions[sub.topic] = sub
	c.subMu.Unlock()
}

func (c *Client) untrack(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// restoreSubscriptions re-subscribes every tracked pattern after a
// reconnect. Failures are logged; paho retries on the next reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	for _, sub := range subs {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		if token.WaitTimeout(defaultPublishTimeout) && token.Error() == nil {
			continue
		}
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT resubscribe failed", "topic", sub.topic, "error", token.Error())
		}
	}
}
