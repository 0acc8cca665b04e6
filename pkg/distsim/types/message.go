package types

import (
	"encoding/json"
	"errors"
)

var (
	// ErrBlankSender is returned when a message carries no sender id.
	ErrBlankSender = errors.New("message sender is blank")
	// ErrBlankReceiver is returned when a message carries no receiver id.
	ErrBlankReceiver = errors.New("message receiver is blank")
	// ErrBlankType is returned when a message carries no type.
	ErrBlankType = errors.New("message type is blank")
)

// SimulationMessage is the wire format exchanged between nodes. It is
// JSON-serializable; unknown fields are ignored on decode (the default
// behavior of encoding/json), and missing required fields cause the message
// to be dropped rather than delivered.
type SimulationMessage struct {
	Sender   NodeId          `json:"sender"`
	Receiver NodeId          `json:"receiver"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Seq      *uint64         `json:"seq,omitempty"`
}

// Validate enforces the required-field contract: non-blank sender, non-blank
// receiver, non-blank type. Seq, when present, is always non-negative since
// it is typed as *uint64.
func (m SimulationMessage) Validate() error {
	if m.Sender.Blank() {
		return ErrBlankSender
	}
	if m.Receiver.Blank() {
		return ErrBlankReceiver
	}
	if m.Type == "" {
		return ErrBlankType
	}
	return nil
}

// WithReceiver returns a copy of m addressed to a different receiver, used
// by broadcast to rewrite the base message per-target.
func (m SimulationMessage) WithReceiver(receiver NodeId) SimulationMessage {
	m.Receiver = receiver
	return m
}
