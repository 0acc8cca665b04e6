package types

import "time"

// EventType enumerates every kind of SimulationEvent the bus carries.
type EventType string

const (
	MessageSent     EventType = "MESSAGE_SENT"
	MessageReceived EventType = "MESSAGE_RECEIVED"
	StateChanged    EventType = "STATE_CHANGED"
	LeaderElected   EventType = "LEADER_ELECTED"
	ErrorEvent      EventType = "ERROR"
	MetricsUpdate   EventType = "METRICS_UPDATE"
)

// SimulationEvent is the single unit of observability fanned out by the
// event bus: every send, receive, state transition, election and error
// surfaces as one of these.
type SimulationEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	Type           EventType `json:"type"`
	NodeId         NodeId    `json:"nodeId"`
	PeerId         *NodeId   `json:"peerId,omitempty"`
	PayloadSummary string    `json:"payloadSummary"`
}

// Peer returns the peer id and true, or the zero NodeId and false when the
// event carries no peer (non-peer events, e.g. STATE_CHANGED).
func (e SimulationEvent) Peer() (NodeId, bool) {
	if e.PeerId == nil {
		return "", false
	}
	return *e.PeerId, true
}

// WithPeer is a small builder used by publishers to attach a peer id.
func WithPeer(id NodeId) *NodeId {
	return &id
}
