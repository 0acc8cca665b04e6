package algorithm

import (
	"encoding/json"
	"sync"

	"github.com/jabolina/distsim/pkg/distsim/types"
)

// FloodingId is the algorithmId a simulation registers this algorithm
// under.
const FloodingId = "flooding-leader-election"

// LeaderAnnouncement is the LEADER_ANNOUNCEMENT payload: the sender's
// current candidate for leader.
type LeaderAnnouncement struct {
	Candidate types.NodeId `json:"candidate"`
}

const leaderAnnouncementType = "LEADER_ANNOUNCEMENT"

// Flooding is the reference leader-election algorithm: every node starts by
// nominating itself, then broadcasts whenever it learns of a numerically
// larger candidate, converging on the global maximum id.
type Flooding struct {
	mu            sync.Mutex
	currentLeader types.NodeId
	initialized   bool
}

// NewFlooding constructs a fresh, per-node Flooding instance.
func NewFlooding() NodeAlgorithm {
	return &Flooding{}
}

// OnStart implements NodeAlgorithm: nominate self and broadcast it.
func (f *Flooding) OnStart(ctx NodeContext) {
	f.mu.Lock()
	f.currentLeader = ctx.Self()
	f.initialized = true
	f.mu.Unlock()

	ctx.Broadcast(ctx.Neighbors(), leaderAnnouncementType, LeaderAnnouncement{Candidate: ctx.Self()})
}

// OnMessage implements NodeAlgorithm: adopt and re-flood a strictly larger
// candidate; otherwise suppress the echo.
func (f *Flooding) OnMessage(ctx NodeContext, message types.SimulationMessage) {
	if message.Type != leaderAnnouncementType {
		return
	}

	var announcement LeaderAnnouncement
	if err := json.Unmarshal(message.Payload, &announcement); err != nil {
		return
	}

	f.mu.Lock()
	if !f.initialized {
		f.currentLeader = ctx.Self()
		f.initialized = true
	}
	shouldFlood := types.Greater(announcement.Candidate, f.currentLeader)
	if shouldFlood {
		f.currentLeader = announcement.Candidate
	}
	current := f.currentLeader
	f.mu.Unlock()

	if shouldFlood {
		ctx.Broadcast(ctx.Neighbors(), leaderAnnouncementType, LeaderAnnouncement{Candidate: current})
	}
}

// CurrentLeader reports the node's current candidate, for tests and the
// engine's convergence check.
func (f *Flooding) CurrentLeader() types.NodeId {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentLeader
}
