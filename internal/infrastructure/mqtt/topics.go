package mqtt

import "fmt"

// Topic prefixes for the lockerweb MQTT hierarchy.
//
// Event topics follow lockerweb/events/{kind}, where kind is an event
// name from the status stream (locker.update, cell.operation,
// locker.connection).
const (
	// TopicPrefixEvents is the base for all mirrored status events.
	TopicPrefixEvents = "lockerweb/events"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "lockerweb/system"
)

// Topics provides builders for lockerweb MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// Event returns the topic a status event of the given kind is mirrored to.
//
// Example: lockerweb/events/cell.operation
func (Topics) Event(kind string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvents, kind)
}

// SystemStatus returns the core online/offline status topic.
//
// Example: lockerweb/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllEvents returns a pattern matching every mirrored event.
//
// Pattern: lockerweb/events/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/+", TopicPrefixEvents)
}
