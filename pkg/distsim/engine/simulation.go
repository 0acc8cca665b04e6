// Package engine owns the per-simulation lifecycle: topology generation,
// node algorithm hosting, metrics aggregation, and visualization/log
// derivation. It never reaches across simulations; every Simulation is a
// fully isolated instance.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jabolina/distsim/pkg/distsim/algorithm"
	"github.com/jabolina/distsim/pkg/distsim/bus"
	"github.com/jabolina/distsim/pkg/distsim/transport"
	"github.com/jabolina/distsim/pkg/distsim/types"
)

// maxTimelineEvents bounds the in-memory event log kept per simulation; the
// oldest events are discarded once the cap is reached rather than letting a
// long-running simulation grow without bound.
const maxTimelineEvents = 10000

// TransportFactory builds the messaging port a Simulation starts with. The
// default is the virtual transport; callers wanting UDP supply their own
// factory built from transport.LoadUDPConfigFromEnv.
type TransportFactory func(b *bus.EventBus, log types.Logger) transport.Port

// DefaultTransportFactory builds an in-process VirtualTransport with default
// queue sizing and no injected faults.
func DefaultTransportFactory(b *bus.EventBus, log types.Logger) transport.Port {
	return transport.NewVirtualTransport(b, transport.DefaultQueueConfig(), transport.DefaultQueueConfig(), transport.FaultConfig{}, log)
}

// Simulation is one independent, fully isolated run: its own bus, topology,
// node algorithms, transport, and metrics. Nothing here is ever shared
// across simulation instances.
type Simulation struct {
	id  types.SimulationId
	log types.Logger

	mu          sync.RWMutex
	state       SimulationState
	network     types.NetworkConfig
	algorithmId string
	algoCtor    algorithm.Constructor
	defaults    types.SimulationParameters
	runParams   types.SimulationParameters

	neighbors  map[types.NodeId][]types.NodeId
	order      []types.NodeId
	algorithms map[types.NodeId]algorithm.NodeAlgorithm
	nodeStates map[types.NodeId]types.NodeState

	bus             *bus.EventBus
	transportFactory TransportFactory
	port            transport.Port

	metrics   types.MetricsSnapshot
	prom      *promMetrics
	startWall time.Time
	stopReal  int64
	stopped   bool

	events []types.SimulationEvent

	driverCancel context.CancelFunc
	driverDone   chan struct{}
}

// NewSimulation builds a fresh, INITIALIZED simulation for the given
// network shape. seed drives RANDOM topology generation only.
func NewSimulation(id types.SimulationId, network types.NetworkConfig, seed int64, factory TransportFactory, log types.Logger) *Simulation {
	if factory == nil {
		factory = DefaultTransportFactory
	}
	log = types.OrDefault(log, "engine")

	neighbors := BuildTopology(network, seed)
	order := make([]types.NodeId, 0, len(neighbors))
	nodeStates := make(map[types.NodeId]types.NodeState, len(neighbors))
	for i := 0; i < network.NodeCount; i++ {
		nid := nodeId(i)
		order = append(order, nid)
		nodeStates[nid] = types.NodeInitialized
	}

	s := &Simulation{
		id:               id,
		log:              log,
		state:            StateInitialized,
		network:          network,
		neighbors:        neighbors,
		order:            order,
		algorithms:       make(map[types.NodeId]algorithm.NodeAlgorithm),
		nodeStates:       nodeStates,
		bus:              bus.New(),
		transportFactory: factory,
		metrics:          types.MetricsSnapshot{},
		prom:             newPromMetrics(id),
	}
	s.subscribeAggregation()
	return s
}

// Id returns the simulation's identity.
func (s *Simulation) Id() types.SimulationId { return s.id }

// Bus returns the simulation's private event bus, for visualization
// listener registration.
func (s *Simulation) Bus() *bus.EventBus { return s.bus }

// Registry returns the simulation's private Prometheus registry, exposing
// distsim_messages_sent_total, distsim_rounds, and distsim_converged scoped
// to this simulation's id.
func (s *Simulation) Registry() *prometheus.Registry { return s.prom.registry }

func (s *Simulation) State() SimulationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SelectAlgorithm binds algorithmId's constructor, moving INITIALIZED or
// STOPPED to CONFIGURED.
func (s *Simulation) SelectAlgorithm(algorithmId string) error {
	ctor, ok := algorithm.Lookup(algorithmId)
	if !ok {
		return &algorithm.ErrUnknownAlgorithm{AlgorithmId: algorithmId}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !canSelectAlgorithm(s.state) {
		return ErrBadState
	}
	s.algorithmId = algorithmId
	s.algoCtor = ctor
	s.state = StateConfigured
	return nil
}

// CurrentConfig returns the simulation's config as seen externally.
func (s *Simulation) CurrentConfig() types.SimulationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.SimulationConfig{
		NetworkConfig:     s.network,
		AlgorithmId:       s.algorithmId,
		DefaultParameters: s.defaults,
	}
}

// SetDefaults records the parameters a loadConfig call supplied, used only
// for getCurrentConfig / idempotent-reload; it has no runtime effect until
// Start is called.
func (s *Simulation) SetDefaults(params types.SimulationParameters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = params
}

// Start attaches a transport, registers one handler per node, fires every
// node's OnStart once, and launches the driver goroutine. Returns
// immediately; the driver runs until maxSteps, convergence, or Stop.
func (s *Simulation) Start(params types.SimulationParameters) error {
	s.mu.Lock()
	if !canStart(s.state) {
		s.mu.Unlock()
		return ErrBadState
	}
	if s.algoCtor == nil {
		s.mu.Unlock()
		return ErrAlgorithmMissing
	}
	s.runParams = params
	s.port = s.transportFactory(s.bus, s.log)
	s.startWall = time.Now()
	s.state = StateRunning

	contexts := make(map[types.NodeId]algorithm.NodeContext, len(s.order))
	for _, id := range s.order {
		instance := s.algoCtor()
		s.algorithms[id] = instance
		ctx := newNodeContext(id, s.neighbors[id], s.port, s.log)
		contexts[id] = ctx
		s.port.RegisterHandler(id, func(message types.SimulationMessage) {
			instance.OnMessage(ctx, message)
		})
	}
	s.mu.Unlock()

	for _, id := range s.order {
		s.algorithms[id].OnStart(contexts[id])
		s.setNodeState(id, types.NodeRunning)
	}
	s.checkConvergence()

	driverCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.driverCancel = cancel
	s.driverDone = make(chan struct{})
	s.mu.Unlock()
	go s.driverLoop(driverCtx)

	return nil
}

// Pause suspends round progression; in-flight and future message delivery
// continue undisturbed.
func (s *Simulation) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canPause(s.state) {
		return ErrBadState
	}
	s.state = StatePaused
	return nil
}

// Resume continues round progression after a Pause.
func (s *Simulation) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canResume(s.state) {
		return ErrBadState
	}
	s.state = StateRunning
	return nil
}

// Step advances exactly one round while PAUSED, for deterministic tests of
// the driver's round counting without racing the background driver
// goroutine (which is itself suspended while paused).
func (s *Simulation) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canStep(s.state) {
		return ErrBadState
	}
	s.metrics.Rounds++
	s.prom.rounds.Set(float64(s.metrics.Rounds))
	return nil
}

// Stop is terminal: cancels the driver, closes the transport, and freezes
// realTimeMillis. The caller (the control façade) is responsible for
// removing the simulation from any registry afterward.
func (s *Simulation) Stop() error {
	s.mu.Lock()
	if !canStop(s.state) {
		s.mu.Unlock()
		return ErrBadState
	}
	s.state = StateStopped
	s.stopReal = time.Since(s.startWall).Milliseconds()
	s.stopped = true
	cancel := s.driverCancel
	done := s.driverDone
	port := s.port
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if port != nil {
		port.Close()
	}

	for _, id := range s.order {
		s.setNodeState(id, types.NodeStopped)
	}
	return nil
}

func (s *Simulation) driverLoop(ctx context.Context) {
	defer close(s.driverDone)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.RLock()
		state := s.state
		rounds := s.metrics.Rounds
		maxSteps := s.runParams.MaxSteps
		converged := s.metrics.Converged
		delay := s.runParams.MessageDelayMillis
		s.mu.RUnlock()

		if state == StateStopped {
			return
		}
		if state == StatePaused {
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
			continue
		}
		if converged || (maxSteps > 0 && rounds >= int64(maxSteps)) {
			return
		}

		s.mu.Lock()
		s.metrics.Rounds++
		s.mu.Unlock()
		s.prom.rounds.Set(float64(rounds + 1))

		if delay > 0 {
			select {
			case <-time.After(time.Duration(delay) * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Simulation) setNodeState(id types.NodeId, state types.NodeState) {
	s.mu.Lock()
	s.nodeStates[id] = state
	s.mu.Unlock()
	s.bus.Publish(types.SimulationEvent{
		Timestamp:      time.Now(),
		Type:           types.StateChanged,
		NodeId:         id,
		PayloadSummary: fmt.Sprintf("state -> %s", state),
	})
}

// subscribeAggregation wires the engine's own metrics/timeline/visualization
// bookkeeping to its private bus. Aggregation never blocks a publisher: each
// handler only takes the simulation's own mutex briefly.
func (s *Simulation) subscribeAggregation() {
	for _, evtType := range []types.EventType{
		types.MessageSent, types.MessageReceived, types.StateChanged,
		types.LeaderElected, types.ErrorEvent, types.MetricsUpdate,
	} {
		evtType := evtType
		s.bus.Subscribe(evtType, func(evt types.SimulationEvent) {
			s.recordEvent(evt)
			s.applyMetrics(evt)
		})
	}
}

func (s *Simulation) recordEvent(evt types.SimulationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	if len(s.events) > maxTimelineEvents {
		s.events = s.events[len(s.events)-maxTimelineEvents:]
	}
}

func (s *Simulation) applyMetrics(evt types.SimulationEvent) {
	switch evt.Type {
	case types.MessageSent:
		s.mu.Lock()
		s.metrics.MessageCount++
		s.mu.Unlock()
		s.prom.incMessages()
	case types.LeaderElected:
		s.mu.Lock()
		id := evt.NodeId
		s.metrics.LeaderId = &id
		s.metrics.Converged = true
		snap := s.metrics
		s.mu.Unlock()
		s.prom.observe(snap)
	case types.MessageReceived:
		s.checkConvergence()
	case types.StateChanged, types.ErrorEvent, types.MetricsUpdate:
		// Recorded in the timeline only; no counter to update.
	}
}

// checkConvergence publishes LEADER_ELECTED the first time every hosted
// algorithm implementing algorithm.ConvergenceReporter agrees on the same
// non-blank leader. Algorithms that don't implement it simply never drive
// this aggregation; convergence then has to be observed some other way by
// the caller.
func (s *Simulation) checkConvergence() {
	s.mu.RLock()
	if s.metrics.Converged || len(s.algorithms) == 0 {
		s.mu.RUnlock()
		return
	}
	var leader types.NodeId
	agree := true
	first := true
	for _, algo := range s.algorithms {
		reporter, ok := algo.(algorithm.ConvergenceReporter)
		if !ok {
			agree = false
			break
		}
		candidate := reporter.CurrentLeader()
		if candidate.Blank() {
			agree = false
			break
		}
		if first {
			leader = candidate
			first = false
			continue
		}
		if candidate != leader {
			agree = false
			break
		}
	}
	s.mu.RUnlock()
	if !agree {
		return
	}

	s.bus.Publish(types.SimulationEvent{
		Timestamp:      time.Now(),
		Type:           types.LeaderElected,
		NodeId:         leader,
		PayloadSummary: fmt.Sprintf("elected %s", leader),
	})
}

// Metrics returns a point-in-time snapshot. realTimeMillis is live while
// running, frozen at the value observed when Stop was called.
func (s *Simulation) Metrics() types.MetricsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.metrics
	if s.stopped {
		snap.RealTimeMillis = s.stopReal
	} else if !s.startWall.IsZero() {
		snap.RealTimeMillis = time.Since(s.startWall).Milliseconds()
	}
	snap.SimulatedTime = snap.Rounds
	return snap
}

// Visualization derives a read-only snapshot of every node's current state
// and the configured topology.
func (s *Simulation) Visualization() types.VisualizationSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]types.VisualNodeState, 0, len(s.order))
	for _, id := range s.order {
		nodes = append(nodes, types.VisualNodeState{
			NodeId:   id,
			State:    s.nodeStates[id],
			IsLeader: s.metrics.LeaderId != nil && *s.metrics.LeaderId == id,
		})
	}

	topology := make(map[types.NodeId]map[types.NodeId]bool, len(s.neighbors))
	for id, ns := range s.neighbors {
		set := make(map[types.NodeId]bool, len(ns))
		for _, n := range ns {
			set[n] = true
		}
		topology[id] = set
	}

	return types.VisualizationSnapshot{
		Timestamp: time.Now().UnixMilli(),
		Nodes:     nodes,
		Topology:  topology,
	}.Clone()
}

// RegisterVisualizationListener subscribes listener to every event type
// relevant to visualization (state changes and leader election).
func (s *Simulation) RegisterVisualizationListener(listener bus.Listener) {
	s.bus.Subscribe(types.StateChanged, listener)
	s.bus.Subscribe(types.LeaderElected, listener)
}

// Logs formats the recorded timeline as
// "[timestamp][type] nodeId[->peerId]: summary" strings, sorted ascending
// by timestamp, optionally filtered by a case-insensitive substring against
// type, nodeId, or payload summary.
func (s *Simulation) Logs(filter string) []string {
	s.mu.RLock()
	events := append([]types.SimulationEvent(nil), s.events...)
	s.mu.RUnlock()

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	filter = strings.ToLower(strings.TrimSpace(filter))
	out := make([]string, 0, len(events))
	for _, evt := range events {
		line := formatLogLine(evt)
		if filter == "" || matchesFilter(evt, filter) {
			out = append(out, line)
		}
	}
	return out
}

func formatLogLine(evt types.SimulationEvent) string {
	target := string(evt.NodeId)
	if peer, ok := evt.Peer(); ok {
		target = fmt.Sprintf("%s->%s", evt.NodeId, peer)
	}
	return fmt.Sprintf("[%s][%s] %s: %s", evt.Timestamp.Format(time.RFC3339Nano), evt.Type, target, evt.PayloadSummary)
}

func matchesFilter(evt types.SimulationEvent, filter string) bool {
	if strings.Contains(strings.ToLower(string(evt.Type)), filter) {
		return true
	}
	if strings.Contains(strings.ToLower(string(evt.NodeId)), filter) {
		return true
	}
	if strings.Contains(strings.ToLower(evt.PayloadSummary), filter) {
		return true
	}
	return false
}

// Events returns a defensive copy of the recorded timeline, for export.
func (s *Simulation) Events() []types.SimulationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.SimulationEvent, len(s.events))
	copy(out, s.events)
	return out
}
