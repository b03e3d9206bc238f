package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "robojar"

// Topics builds rig MQTT topics under a configurable prefix.
//
// Topic hierarchy:
//
//	{prefix}/state/{kind}/{device}   retained device state
//	{prefix}/event/transition        every applied transition
//	{prefix}/command                 inbound text commands
//	{prefix}/rig/command             outbound compact commands (valve2Open)
//	{prefix}/system/status           online/offline, retained
type Topics struct {
	Prefix string
}

// NewTopics returns a builder for prefix, falling back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// DeviceState returns the retained state topic for a device.
//
// Example: robojar/state/valve/valve-1
func (t Topics) DeviceState(kind, deviceName string) string {
	return fmt.Sprintf("%s/state/%s/%s", t.prefix(), kind, Slug(deviceName))
}

// Transition returns the topic carrying every applied transition.
func (t Topics) Transition() string {
	return t.prefix() + "/event/transition"
}

// Command returns the topic the core listens on for text commands.
func (t Topics) Command() string {
	return t.prefix() + "/command"
}

// RigCommand returns the topic compact commands are dispatched to.
func (t Topics) RigCommand() string {
	return t.prefix() + "/rig/command"
}

// SystemStatus returns the retained online/offline topic.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// AllStates matches every device state topic.
//
// Pattern: robojar/state/#
func (t Topics) AllStates() string {
	return t.prefix() + "/state/#"
}

// Slug lower-cases a device name and replaces anything outside [a-z0-9]
// with single dashes, so "Main Pump" becomes "main-pump".
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
