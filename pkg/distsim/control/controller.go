// Package control implements the public control façade: the thin API that
// combines topology/algorithm selection, lifecycle control, and
// metrics/visualization/log/export queries over a registry of independent
// simulations.
package control

import (
	"errors"
	"sync"

	"github.com/jabolina/distsim/pkg/distsim/bus"
	"github.com/jabolina/distsim/pkg/distsim/engine"
	"github.com/jabolina/distsim/pkg/distsim/types"
)

// ErrUnknownSimulation is returned by every operation given a SimulationId
// that never existed or has already been stopped.
var ErrUnknownSimulation = errors.New("unknown simulation")

// Controller owns the registry of live simulations. There is no global
// instance: each Controller is independent, and every Simulation it holds
// is itself fully isolated from the others.
type Controller struct {
	mu          sync.RWMutex
	simulations map[types.SimulationId]*engine.Simulation
	factory     engine.TransportFactory
	log         types.Logger
}

// New builds an empty Controller. factory builds the transport each started
// simulation uses; nil selects the in-process virtual transport.
func New(factory engine.TransportFactory, log types.Logger) *Controller {
	return &Controller{
		simulations: make(map[types.SimulationId]*engine.Simulation),
		factory:     factory,
		log:         types.OrDefault(log, "control"),
	}
}

// InitializeNetwork creates a fresh, INITIALIZED simulation over the given
// topology and returns its id.
func (c *Controller) InitializeNetwork(network types.NetworkConfig) (types.SimulationId, error) {
	if err := network.Validate(); err != nil {
		return "", err
	}

	id := types.NewSimulationId()
	sim := engine.NewSimulation(id, network, 42, c.factory, c.log)

	c.mu.Lock()
	c.simulations[id] = sim
	c.mu.Unlock()
	return id, nil
}

// LoadConfig creates a fresh simulation from a full SimulationConfig,
// combining InitializeNetwork and SelectAlgorithm in one call so the result
// is immediately CONFIGURED. Used for the idempotent-reload property:
// loadConfig(getCurrentConfig(id)) produces a new simulation whose
// getCurrentConfig matches the original, modulo ids.
func (c *Controller) LoadConfig(config types.SimulationConfig) (types.SimulationId, error) {
	if err := config.Validate(); err != nil {
		return "", err
	}

	seed := config.DefaultParameters.RandomSeed
	id := types.NewSimulationId()
	sim := engine.NewSimulation(id, config.NetworkConfig, seed, c.factory, c.log)
	if err := sim.SelectAlgorithm(config.AlgorithmId); err != nil {
		return "", err
	}
	sim.SetDefaults(config.DefaultParameters)

	c.mu.Lock()
	c.simulations[id] = sim
	c.mu.Unlock()
	return id, nil
}

// SelectAlgorithm binds algorithmId to simulationId.
func (c *Controller) SelectAlgorithm(simulationId types.SimulationId, algorithmId string) error {
	sim, err := c.lookup(simulationId)
	if err != nil {
		return err
	}
	return sim.SelectAlgorithm(algorithmId)
}

// StartSimulation starts simulationId running with params.
func (c *Controller) StartSimulation(simulationId types.SimulationId, params types.SimulationParameters) error {
	sim, err := c.lookup(simulationId)
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	return sim.Start(params)
}

// PauseSimulation suspends round progression.
func (c *Controller) PauseSimulation(simulationId types.SimulationId) error {
	sim, err := c.lookup(simulationId)
	if err != nil {
		return err
	}
	return sim.Pause()
}

// ResumeSimulation continues round progression after a pause.
func (c *Controller) ResumeSimulation(simulationId types.SimulationId) error {
	sim, err := c.lookup(simulationId)
	if err != nil {
		return err
	}
	return sim.Resume()
}

// StopSimulation terminates the simulation and removes it from the
// registry; the id is unresolvable to every operation afterward.
func (c *Controller) StopSimulation(simulationId types.SimulationId) error {
	sim, err := c.lookup(simulationId)
	if err != nil {
		return err
	}
	if err := sim.Stop(); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.simulations, simulationId)
	c.mu.Unlock()
	return nil
}

// GetMetrics returns a point-in-time MetricsSnapshot.
func (c *Controller) GetMetrics(simulationId types.SimulationId) (types.MetricsSnapshot, error) {
	sim, err := c.lookup(simulationId)
	if err != nil {
		return types.MetricsSnapshot{}, err
	}
	return sim.Metrics(), nil
}

// GetCurrentVisualization returns a read-only VisualizationSnapshot.
func (c *Controller) GetCurrentVisualization(simulationId types.SimulationId) (types.VisualizationSnapshot, error) {
	sim, err := c.lookup(simulationId)
	if err != nil {
		return types.VisualizationSnapshot{}, err
	}
	return sim.Visualization(), nil
}

// RegisterVisualizationListener subscribes listener to every event type
// relevant to visualization for simulationId.
func (c *Controller) RegisterVisualizationListener(simulationId types.SimulationId, listener bus.Listener) error {
	sim, err := c.lookup(simulationId)
	if err != nil {
		return err
	}
	sim.RegisterVisualizationListener(listener)
	return nil
}

// GetCurrentConfig returns the simulation's current SimulationConfig.
func (c *Controller) GetCurrentConfig(simulationId types.SimulationId) (types.SimulationConfig, error) {
	sim, err := c.lookup(simulationId)
	if err != nil {
		return types.SimulationConfig{}, err
	}
	return sim.CurrentConfig(), nil
}

// GetLogs formats simulationId's recorded timeline as sorted, optionally
// filtered log lines.
func (c *Controller) GetLogs(simulationId types.SimulationId, filter string) ([]string, error) {
	sim, err := c.lookup(simulationId)
	if err != nil {
		return nil, err
	}
	return sim.Logs(filter), nil
}

// ExportRunData exports simulationId's events and metrics in the requested
// format ("JSON" or "CSV", case-insensitive).
func (c *Controller) ExportRunData(simulationId types.SimulationId, format string) ([]byte, error) {
	sim, err := c.lookup(simulationId)
	if err != nil {
		return nil, err
	}
	return exportRunData(sim.Events(), sim.Metrics(), format)
}

func (c *Controller) lookup(id types.SimulationId) (*engine.Simulation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sim, ok := c.simulations[id]
	if !ok {
		return nil, ErrUnknownSimulation
	}
	return sim, nil
}
