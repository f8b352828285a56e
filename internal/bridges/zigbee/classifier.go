package zigbee

import (
	"strings"
	"sync/atomic"
)

// Class identifies how a raw MQTT message will be dispatched.
type Class int

const (
	// ClassDiscard marks messages outside the coordinator's root topic.
	ClassDiscard Class = iota
	// ClassBridge marks coordinator administration topics ({root}/bridge/...).
	ClassBridge
	// ClassGroup marks messages for a zigbee2mqtt group.
	ClassGroup
	// ClassDevice marks messages for an individual mesh device.
	ClassDevice
)

func (c Class) String() string {
	switch c {
	case ClassBridge:
		return "bridge"
	case ClassGroup:
		return "group"
	case ClassDevice:
		return "device"
	default:
		return "discard"
	}
}

// Message is one classified MQTT message queued for dispatch.
type Message struct {
	CoordinatorID int
	Class         Class
	Topic         string
	Segments      []string
	FriendlyName  string // device or group friendly name, empty for bridge topics
	Suffix        string // trailing segment after the friendly name ("availability", "set", "get")
	Payload       []byte
	Seq           uint64
}

// GroupLookup answers whether a friendly name currently names a group.
// Satisfied by *Topology.
type GroupLookup interface {
	HasGroup(friendlyName string) bool
}

// Classifier turns raw topics into classified messages for one
// coordinator. Classification is pure apart from the group lookup and
// the sequence counter.
type Classifier struct {
	coordinatorID int
	root          string
	groups        GroupLookup
	seq           atomic.Uint64
}

// NewClassifier creates a classifier for one coordinator's root topic.
func NewClassifier(coordinatorID int, rootTopic string, groups GroupLookup) *Classifier {
	return &Classifier{
		coordinatorID: coordinatorID,
		root:          rootTopic,
		groups:        groups,
	}
}

// Classify assigns a class and sequence number to a raw message.
// Messages whose first segment is not the coordinator's root topic are
// classified ClassDiscard and carry no sequence number.
func (c *Classifier) Classify(topic string, payload []byte) Message {
	segments := strings.Split(topic, "/")

	msg := Message{
		CoordinatorID: c.coordinatorID,
		Topic:         topic,
		Segments:      segments,
		Payload:       payload,
	}

	if len(segments) < 2 || segments[0] != c.root {
		msg.Class = ClassDiscard
		return msg
	}

	msg.Seq = c.seq.Add(1)

	switch {
	case segments[1] == "bridge":
		msg.Class = ClassBridge
	case c.groups != nil && c.groups.HasGroup(segments[1]):
		msg.Class = ClassGroup
		msg.FriendlyName = segments[1]
	default:
		msg.Class = ClassDevice
		msg.FriendlyName = segments[1]
	}

	if msg.Class != ClassBridge && len(segments) > 2 {
		msg.Suffix = segments[2]
	}

	return msg
}
