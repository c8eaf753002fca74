package mqtt

import "fmt"

// Topic prefixes for the Halcyon topic scheme.
//
// Agent topics carry the pipeline traffic (command batches, status events,
// supervisor feedback); room topics carry per-room device control; system
// topics carry process status.
const (
	// TopicPrefixAgents is the base for inter-agent pipeline topics.
	TopicPrefixAgents = "halcyon/agents"

	// TopicPrefixRoom is the base for per-room device-control topics.
	TopicPrefixRoom = "halcyon/room"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "halcyon/system"
)

// Topics provides builders for Halcyon MQTT topics.
// Using these helpers keeps topic naming consistent across agents:
//
//	topics := mqtt.Topics{}
//	topic := topics.RoomLightControl("kitchen")
//	// Returns: "halcyon/room/kitchen/light/control"
type Topics struct{}

// LightCommands returns the topic where the sensing side publishes
// room/color decisions for the controller to pick up.
//
// Example: halcyon/agents/light-commands
func (Topics) LightCommands() string {
	return fmt.Sprintf("%s/light-commands", TopicPrefixAgents)
}

// ActuatorCommands returns the topic carrying command batches into the
// coordinator.
//
// Example: halcyon/agents/actuator-commands
func (Topics) ActuatorCommands() string {
	return fmt.Sprintf("%s/actuator-commands", TopicPrefixAgents)
}

// ActuatorStatus returns the topic where the coordinator publishes pending
// and completed status events.
//
// Example: halcyon/agents/actuator/status
func (Topics) ActuatorStatus() string {
	return fmt.Sprintf("%s/actuator/status", TopicPrefixAgents)
}

// SupervisorFeedback returns the topic where the supervisor publishes its
// decisions.
//
// Example: halcyon/agents/supervisor/feedback
func (Topics) SupervisorFeedback() string {
	return fmt.Sprintf("%s/supervisor/feedback", TopicPrefixAgents)
}

// RoomLightControl returns the per-room physical light control topic.
//
// Example: halcyon/room/kitchen/light/control
func (Topics) RoomLightControl(room string) string {
	return fmt.Sprintf("%s/%s/light/control", TopicPrefixRoom, room)
}

// SystemStatus returns the system status topic (online/offline, LWT).
//
// Example: halcyon/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllRoomLightControls returns a pattern matching every room's light
// control topic.
//
// Pattern: halcyon/room/+/light/control
func (Topics) AllRoomLightControls() string {
	return fmt.Sprintf("%s/+/light/control", TopicPrefixRoom)
}

// AllTopics returns a pattern matching all Halcyon topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: halcyon/#
func (Topics) AllTopics() string {
	return "halcyon/#"
}
