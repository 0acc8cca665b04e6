// Package transport implements the messaging port: the public façade
// (Send/Broadcast/RegisterHandler/UnregisterHandler) and its two
// interchangeable implementations, the in-process virtual transport and the
// UDP transport.
package transport

import (
	"github.com/jabolina/distsim/pkg/distsim/bus"
	"github.com/jabolina/distsim/pkg/distsim/types"
)

// Handler processes one delivered message. At most one handler invocation
// runs at a time for a given receiver; different receivers may run in
// parallel.
type Handler func(message types.SimulationMessage)

// Port is the transport-independent messaging façade every algorithm
// ultimately rides on through a NodeContext. Both transports implement it
// identically from the caller's point of view: best-effort, asynchronous,
// never blocking indefinitely.
type Port interface {
	// Send enqueues message for delivery to receiver. Returns true iff
	// accepted (enqueued/handed to the transport). Never blocks
	// indefinitely: under the Block overflow policy it blocks at most the
	// configured timeout before failing.
	Send(receiver types.NodeId, message types.SimulationMessage) bool

	// Broadcast rewrites message.Receiver to each of receivers in turn and
	// calls Send. Failures are per-target; Broadcast itself never fails.
	Broadcast(receivers []types.NodeId, message types.SimulationMessage)

	// RegisterHandler binds handler to nodeId. Thread-safe, callable at
	// any time; replaces any previously registered handler for that id.
	RegisterHandler(nodeId types.NodeId, handler Handler)

	// UnregisterHandler removes the handler bound to nodeId, if any.
	UnregisterHandler(nodeId types.NodeId)

	// Close releases every resource the transport holds (sockets,
	// goroutines, queues) and is idempotent.
	Close()
}

// emitSent publishes a MESSAGE_SENT event for an accepted send.
func emitSent(b *bus.EventBus, sender, receiver types.NodeId, summary string) {
	b.Publish(types.SimulationEvent{
		Timestamp:      nowFunc(),
		Type:           types.MessageSent,
		NodeId:         sender,
		PeerId:         types.WithPeer(receiver),
		PayloadSummary: summary,
	})
}

// emitReceived publishes a MESSAGE_RECEIVED event for a delivered message.
func emitReceived(b *bus.EventBus, receiver, sender types.NodeId, summary string) {
	b.Publish(types.SimulationEvent{
		Timestamp:      nowFunc(),
		Type:           types.MessageReceived,
		NodeId:         receiver,
		PeerId:         types.WithPeer(sender),
		PayloadSummary: summary,
	})
}

// emitError publishes an ERROR event. nodeId identifies the local endpoint
// that observed the failure; peer is optional (pass "" when there is none).
func emitError(b *bus.EventBus, nodeId, peer types.NodeId, cause string) {
	evt := types.SimulationEvent{
		Timestamp:      nowFunc(),
		Type:           types.ErrorEvent,
		NodeId:         nodeId,
		PayloadSummary: cause,
	}
	if !peer.Blank() {
		evt.PeerId = types.WithPeer(peer)
	}
	b.Publish(evt)
}

func summarize(message types.SimulationMessage) string {
	return string(message.Type) + " from " + string(message.Sender) + " to " + string(message.Receiver)
}
