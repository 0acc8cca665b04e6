package engine

import (
	"encoding/json"

	"github.com/jabolina/distsim/pkg/distsim/algorithm"
	"github.com/jabolina/distsim/pkg/distsim/transport"
	"github.com/jabolina/distsim/pkg/distsim/types"
)

// nodeContext is the per-node view of the simulation's port and topology
// handed to an algorithm. It is the algorithm's only outward channel: it
// cannot reach the bus, the engine, or any other node's state.
type nodeContext struct {
	self      types.NodeId
	neighbors []types.NodeId
	port      transport.Port
	log       types.Logger
}

func newNodeContext(self types.NodeId, neighbors []types.NodeId, port transport.Port, log types.Logger) algorithm.NodeContext {
	return &nodeContext{self: self, neighbors: neighbors, port: port, log: log}
}

func (c *nodeContext) Self() types.NodeId { return c.self }

func (c *nodeContext) Neighbors() []types.NodeId { return c.neighbors }

func (c *nodeContext) Send(peer types.NodeId, messageType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Warnf("node %s: failed to encode %s payload for %s: %v", c.self, messageType, peer, err)
		return
	}
	message := types.SimulationMessage{Sender: c.self, Receiver: peer, Type: messageType, Payload: data}
	c.port.Send(peer, message)
}

func (c *nodeContext) Broadcast(peers []types.NodeId, messageType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Warnf("node %s: failed to encode %s broadcast payload: %v", c.self, messageType, err)
		return
	}
	base := types.SimulationMessage{Sender: c.self, Type: messageType, Payload: data}
	c.port.Broadcast(peers, base)
}
