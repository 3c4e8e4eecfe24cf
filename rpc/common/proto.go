package common

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Protocol Constants
// --------------------------------------------------------------------------

const (
	// PrimaryInstanceID is the instance id that denotes the primary in protocol messages.
	// It is never assigned to a secondary instance.
	PrimaryInstanceID uint16 = 0

	// MaxContentSize is the largest content a single message may carry (1 MiB)
	MaxContentSize = 1024 * 1024
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message is a single protocol message exchanged between a secondary and the primary.
// A Message is treated as immutable once it was constructed or decoded.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// InstanceID of the sender (PrimaryInstanceID for messages sent by the primary)
	InstanceID uint16 `json:"instance_id"`

	// Content is the opaque payload (at most MaxContentSize bytes)
	Content []byte `json:"content,omitempty"`
}

// InboundMessage is a Message received by the primary together with the id of the
// connection it arrived on
type InboundMessage struct {
	ConnectionID uint64  `json:"connection_id"`
	Message      Message `json:"message"`
}

// String returns a short description of the message (without the content)
func (m Message) String() string {
	return fmt.Sprintf("%s(instance=%d, %d bytes)", m.MsgType, m.InstanceID, len(m.Content))
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewAcknowledge creates the acknowledge reply sent by the primary
func NewAcknowledge() *Message {
	return &Message{
		MsgType:    MsgTAcknowledge,
		InstanceID: PrimaryInstanceID,
	}
}

// NewInstanceRequest creates the message a secondary sends to announce itself
func NewInstanceRequest(instanceID uint16, content []byte) *Message {
	return &Message{
		MsgType:    MsgTNewInstance,
		InstanceID: instanceID,
		Content:    content,
	}
}

// NewInstanceMessage creates an application message sent from a secondary to the primary
func NewInstanceMessage(instanceID uint16, content []byte) *Message {
	return &Message{
		MsgType:    MsgTInstanceMessage,
		InstanceID: instanceID,
		Content:    content,
	}
}

// NewPrimaryPidRequest creates a request for the process id of the primary
func NewPrimaryPidRequest(instanceID uint16) *Message {
	return &Message{
		MsgType:    MsgTPrimaryPidRequest,
		InstanceID: instanceID,
	}
}

// NewPrimaryPidResponse creates the reply to a PrimaryPidRequest
func NewPrimaryPidResponse(content []byte) *Message {
	return &Message{
		MsgType:    MsgTPrimaryPidRequest,
		InstanceID: PrimaryInstanceID,
		Content:    content,
	}
}

// NewPrimaryUserRequest creates a request for the user owning the primary
func NewPrimaryUserRequest(instanceID uint16) *Message {
	return &Message{
		MsgType:    MsgTPrimaryUserRequest,
		InstanceID: instanceID,
	}
}

// NewPrimaryUserResponse creates the reply to a PrimaryUserRequest
func NewPrimaryUserResponse(user string) *Message {
	return &Message{
		MsgType:    MsgTPrimaryUserRequest,
		InstanceID: PrimaryInstanceID,
		Content:    []byte(user),
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of a message. It is written to the wire as its ordinal.
type MessageType uint8

// Valid reports whether t is one of the known message types
func (t MessageType) Valid() bool {
	return t <= MsgTPrimaryUserRequest
}

// IsApplicationMessage reports whether messages of this type carry content for the
// application handlers (and are acknowledged by the primary)
func (t MessageType) IsApplicationMessage() bool {
	return t == MsgTNewInstance || t == MsgTInstanceMessage
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTAcknowledge:
		return "acknowledge"
	case MsgTNewInstance:
		return "newInstance"
	case MsgTInstanceMessage:
		return "instanceMessage"
	case MsgTPrimaryPidRequest:
		return "primaryPidRequest"
	case MsgTPrimaryUserRequest:
		return "primaryUserRequest"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "acknowledge":
		*t = MsgTAcknowledge
	case "newInstance":
		*t = MsgTNewInstance
	case "instanceMessage":
		*t = MsgTInstanceMessage
	case "primaryPidRequest":
		*t = MsgTPrimaryPidRequest
	case "primaryUserRequest":
		*t = MsgTPrimaryUserRequest
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	MsgTAcknowledge        MessageType = iota // Reply of the primary to NewInstance and InstanceMessage
	MsgTNewInstance                           // Sent once by a secondary after startup
	MsgTInstanceMessage                       // Application message from a secondary
	MsgTPrimaryPidRequest                     // Query (and reply) for the primary's process id
	MsgTPrimaryUserRequest                    // Query (and reply) for the primary's owning user
)

// --------------------------------------------------------------------------
// Query Reply Content
// --------------------------------------------------------------------------

// EncodePid encodes a process id as the content of a PrimaryPidRequest reply (int64, big endian)
func EncodePid(pid int64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), uint64(pid))
}

// DecodePid decodes the content of a PrimaryPidRequest reply
func DecodePid(content []byte) (int64, error) {
	if len(content) != 8 {
		return -1, fmt.Errorf("pid content must be 8 bytes, got %d", len(content))
	}
	return int64(binary.BigEndian.Uint64(content)), nil
}
