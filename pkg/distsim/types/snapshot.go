package types

// MetricsSnapshot is a point-in-time read of a simulation's aggregated
// counters. Counters never decrease during a run.
type MetricsSnapshot struct {
	SimulatedTime  int64   `json:"simulatedTime"`
	RealTimeMillis int64   `json:"realTimeMillis"`
	MessageCount   int64   `json:"messageCount"`
	Rounds         int64   `json:"rounds"`
	Converged      bool    `json:"converged"`
	LeaderId       *NodeId `json:"leaderId"`
}

// NodeState is the small, closed state machine a node's visualization
// entry moves through: INITIALIZED -> RUNNING -> STOPPED. The engine makes
// each transition itself and publishes a matching STATE_CHANGED event:
// RUNNING once the node's OnStart has run, STOPPED on Stop. Algorithms
// cannot emit STATE_CHANGED; NodeContext has no operation for it.
type NodeState string

const (
	NodeInitialized NodeState = "INITIALIZED"
	NodeRunning     NodeState = "RUNNING"
	NodeStopped     NodeState = "STOPPED"
)

// VisualNodeState is one node's entry in a VisualizationSnapshot.
type VisualNodeState struct {
	NodeId   NodeId    `json:"nodeId"`
	State    NodeState `json:"state"`
	IsLeader bool      `json:"isLeader"`
}

// VisualizationSnapshot is a read-only value type describing the current
// look of a running simulation: every node's observed state, and the
// configured topology as an adjacency map. Callers receive a copy;
// mutating it has no effect on the simulation.
type VisualizationSnapshot struct {
	Timestamp int64                      `json:"timestamp"`
	Nodes     []VisualNodeState          `json:"nodes"`
	Topology  map[NodeId]map[NodeId]bool `json:"topology"`
}

// Clone returns a deep copy, so that callers can never mutate engine state
// through a returned snapshot.
func (v VisualizationSnapshot) Clone() VisualizationSnapshot {
	nodes := make([]VisualNodeState, len(v.Nodes))
	copy(nodes, v.Nodes)

	topology := make(map[NodeId]map[NodeId]bool, len(v.Topology))
	for id, neighbors := range v.Topology {
		cp := make(map[NodeId]bool, len(neighbors))
		for n := range neighbors {
			cp[n] = true
		}
		topology[id] = cp
	}

	return VisualizationSnapshot{
		Timestamp: v.Timestamp,
		Nodes:     nodes,
		Topology:  topology,
	}
}
