package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// Topic prefixes for Rail Logic MQTT traffic.
//
// Command station topics use the flat scheme: raillogic/{category}/{control}[/{detail}]
// where {control} is the command station id used in the layout.
const (
	// TopicPrefix is the base for all topics.
	TopicPrefix = "raillogic"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "raillogic/system"
)

// Command kinds published under raillogic/command/{control}/{kind}.
const (
	CommandLoco      = "loco"
	CommandAccessory = "accessory"
	CommandBooster   = "booster"
)

// CoreHealthID is the id under which the core publishes its own health.
const CoreHealthID = "core"

// Topics provides builders for Rail Logic MQTT topics.
//
//	topics := mqtt.Topics{}
//	cmd := topics.Command("cs1", mqtt.CommandAccessory)
//	// Returns: "raillogic/command/cs1/accessory"
type Topics struct{}

// =============================================================================
// Command Station Topics
// =============================================================================

// Command returns the topic for commands to a command station.
//
// Example: raillogic/command/cs1/loco
func (Topics) Command(control, kind string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, control, kind)
}

// Feedback returns the topic a command station reports a sensor pin on.
//
// Example: raillogic/feedback/cs1/17
func (Topics) Feedback(control string, pin uint32) string {
	return fmt.Sprintf("%s/feedback/%s/%d", TopicPrefix, control, pin)
}

// Booster returns the topic a command station reports its track power on.
//
// Example: raillogic/booster/cs1
func (Topics) Booster(control string) string {
	return fmt.Sprintf("%s/booster/%s", TopicPrefix, control)
}

// Health returns the health topic of a command station or the core.
//
// Example: raillogic/health/cs1
func (Topics) Health(id string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, id)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
//
// Example: raillogic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllFeedbacks returns a pattern matching every sensor report.
//
// Pattern: raillogic/feedback/+/+
func (Topics) AllFeedbacks() string {
	return fmt.Sprintf("%s/feedback/+/+", TopicPrefix)
}

// AllBoosters returns a pattern matching every track power report.
//
// Pattern: raillogic/booster/+
func (Topics) AllBoosters() string {
	return fmt.Sprintf("%s/booster/+", TopicPrefix)
}

// AllHealth returns a pattern matching every health report.
//
// Pattern: raillogic/health/+
func (Topics) AllHealth() string {
	return fmt.Sprintf("%s/health/+", TopicPrefix)
}

// AllTopics returns a pattern matching all Rail Logic topics.
//
// Pattern: raillogic/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// =============================================================================
// Topic Parsing
// =============================================================================

// ParseFeedback extracts the command station and pin from a feedback topic.
//
// Returns:
//   - ErrInvalidTopic if topic is not raillogic/feedback/{control}/{pin}
func (Topics) ParseFeedback(topic string) (control string, pin uint32, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "feedback" || parts[2] == "" {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	n, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("%w: pin in %q", ErrInvalidTopic, topic)
	}
	return parts[2], uint32(n), nil
}

// ParseStation extracts the id from a raillogic/{category}/{id} topic.
func (Topics) ParseStation(topic, category string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefix || parts[1] != category || parts[2] == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return parts[2], nil
}
