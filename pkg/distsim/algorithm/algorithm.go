// Package algorithm defines the node strategy contract every simulation
// runs and hosts the flooding leader-election reference implementation.
package algorithm

import (
	"fmt"

	"github.com/jabolina/distsim/pkg/distsim/types"
)

// NodeContext is an algorithm's only outward channel. An algorithm must not
// reach into the bus, port, or engine directly; everything it can observe or
// do flows through this interface.
type NodeContext interface {
	// Self returns the local node's id.
	Self() types.NodeId

	// Neighbors returns the node's configured neighbor set. Callers must
	// not mutate the returned slice.
	Neighbors() []types.NodeId

	// Send delivers message to peer. Fire-and-forget: acceptance is
	// observable only through the event bus, never through a return value
	// the algorithm can branch on.
	Send(peer types.NodeId, messageType string, payload interface{})

	// Broadcast sends message to every id in peers.
	Broadcast(peers []types.NodeId, messageType string, payload interface{})
}

// NodeAlgorithm is the strategy interface every pluggable algorithm
// implements. A fresh value is constructed per node per simulation run.
type NodeAlgorithm interface {
	// OnStart fires once, after the engine has registered the handler of
	// every node. Nodes are started one at a time, so messages from nodes
	// started earlier may be delivered before this node's OnStart runs.
	OnStart(ctx NodeContext)

	// OnMessage fires once per delivered message, serially per node.
	OnMessage(ctx NodeContext, message types.SimulationMessage)
}

// Constructor builds a fresh NodeAlgorithm instance, one per node.
type Constructor func() NodeAlgorithm

// ConvergenceReporter is an optional capability an algorithm may implement
// so the engine can detect convergence and publish LEADER_ELECTED without
// the algorithm reaching into the bus itself. An algorithm that doesn't
// implement it simply never drives that aggregation.
type ConvergenceReporter interface {
	CurrentLeader() types.NodeId
}

var registry = map[string]Constructor{
	FloodingId: NewFlooding,
}

// Lookup resolves an algorithmId to its constructor. The bad-state/
// unsupported-algorithm-id error is the caller's (the engine's) to raise;
// Lookup only reports whether the id is known.
func Lookup(algorithmId string) (Constructor, bool) {
	ctor, ok := registry[algorithmId]
	return ctor, ok
}

// ErrUnknownAlgorithm is returned by engine calls that receive an
// unregistered algorithmId.
type ErrUnknownAlgorithm struct {
	AlgorithmId string
}

func (e *ErrUnknownAlgorithm) Error() string {
	return fmt.Sprintf("unknown algorithm id %q", e.AlgorithmId)
}
