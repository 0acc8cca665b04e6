package control

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jabolina/distsim/pkg/distsim/algorithm"
	"github.com/jabolina/distsim/pkg/distsim/types"
	"go.uber.org/goleak"
)

func TestController_InitializeNetworkRejectsInvalidConfig(t *testing.T) {
	c := New(nil, nil)
	if _, err := c.InitializeNetwork(types.NetworkConfig{NodeCount: 0, Topology: types.TopologyLine}); err == nil {
		t.Fatal("expected error for nodeCount 0")
	}
	if _, err := c.InitializeNetwork(types.NetworkConfig{NodeCount: 3, Topology: "HEXAGON"}); err == nil {
		t.Fatal("expected error for unknown topology")
	}
}

func TestController_OperationsOnUnknownSimulationFail(t *testing.T) {
	c := New(nil, nil)
	bogus := types.SimulationId("does-not-exist")

	if err := c.SelectAlgorithm(bogus, algorithm.FloodingId); err != ErrUnknownSimulation {
		t.Fatalf("expected ErrUnknownSimulation, got %v", err)
	}
	if err := c.StartSimulation(bogus, types.SimulationParameters{MaxSteps: 1}); err != ErrUnknownSimulation {
		t.Fatalf("expected ErrUnknownSimulation, got %v", err)
	}
	if _, err := c.GetMetrics(bogus); err != ErrUnknownSimulation {
		t.Fatalf("expected ErrUnknownSimulation, got %v", err)
	}
	if _, err := c.GetCurrentVisualization(bogus); err != ErrUnknownSimulation {
		t.Fatalf("expected ErrUnknownSimulation, got %v", err)
	}
	if _, err := c.GetCurrentConfig(bogus); err != ErrUnknownSimulation {
		t.Fatalf("expected ErrUnknownSimulation, got %v", err)
	}
	if _, err := c.ExportRunData(bogus, "JSON"); err != ErrUnknownSimulation {
		t.Fatalf("expected ErrUnknownSimulation, got %v", err)
	}
	if _, err := c.GetLogs(bogus, ""); err != ErrUnknownSimulation {
		t.Fatalf("expected ErrUnknownSimulation, got %v", err)
	}
}

func TestController_ExportFreshlyInitializedSimulationIsAllZero(t *testing.T) {
	c := New(nil, nil)
	id, err := c.InitializeNetwork(types.NetworkConfig{NodeCount: 2, Topology: types.TopologyLine})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	data, err := c.ExportRunData(id, "json")
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	var decoded struct {
		Events  []types.SimulationEvent `json:"events"`
		Metrics types.MetricsSnapshot   `json:"metrics"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Events) != 0 {
		t.Fatalf("expected no events, got %d", len(decoded.Events))
	}
	if decoded.Metrics != (types.MetricsSnapshot{}) {
		t.Fatalf("expected all-zero metrics, got %+v", decoded.Metrics)
	}
	if !strings.Contains(string(data), `"events":[]`) {
		t.Fatalf("expected an explicit empty events array in the JSON, got %s", data)
	}
}

func TestController_ExportUnsupportedFormatIsRejected(t *testing.T) {
	c := New(nil, nil)
	id, _ := c.InitializeNetwork(types.NetworkConfig{NodeCount: 1, Topology: types.TopologyLine})
	if _, err := c.ExportRunData(id, "XML"); err != ErrUnsupportedFormat {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestController_ExportCSVHasBothSections(t *testing.T) {
	c := New(nil, nil)
	id, _ := c.InitializeNetwork(types.NetworkConfig{NodeCount: 1, Topology: types.TopologyLine})
	data, err := c.ExportRunData(id, "CSV")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "=== EVENTS ===") || !strings.Contains(content, "=== METRICS ===") {
		t.Fatalf("expected both CSV sections, got %s", content)
	}
	if !strings.Contains(content, "timestamp,type,nodeId,peerId,payloadSummary") {
		t.Fatal("expected the events header row")
	}
	if !strings.Contains(content, "simulatedTime,realTimeMillis,messageCount,rounds,converged,leaderId") {
		t.Fatal("expected the metrics header row")
	}
}

func TestController_IdempotentReload(t *testing.T) {
	c := New(nil, nil)
	id, err := c.LoadConfig(types.SimulationConfig{
		NetworkConfig:     types.NetworkConfig{NodeCount: 4, Topology: types.TopologyRing},
		AlgorithmId:       algorithm.FloodingId,
		DefaultParameters: types.SimulationParameters{RandomSeed: 7, MaxSteps: 10, MessageDelayMillis: 5},
	})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	original, err := c.GetCurrentConfig(id)
	if err != nil {
		t.Fatalf("getCurrentConfig: %v", err)
	}

	reloadedId, err := c.LoadConfig(original)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloadedId == id {
		t.Fatal("expected a fresh simulation id on reload")
	}

	reloaded, err := c.GetCurrentConfig(reloadedId)
	if err != nil {
		t.Fatalf("getCurrentConfig after reload: %v", err)
	}
	if reloaded != original {
		t.Fatalf("expected reloaded config to equal original modulo id, got %+v vs %+v", reloaded, original)
	}
}

func TestController_StopRemovesSimulationFromRegistry(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New(nil, nil)
	id, err := c.LoadConfig(types.SimulationConfig{
		NetworkConfig:     types.NetworkConfig{NodeCount: 2, Topology: types.TopologyLine},
		AlgorithmId:       algorithm.FloodingId,
		DefaultParameters: types.SimulationParameters{MaxSteps: 3},
	})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if err := c.StartSimulation(id, types.SimulationParameters{MaxSteps: 3}); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m, _ := c.GetMetrics(id)
		if m.Converged {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := c.StopSimulation(id); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := c.GetMetrics(id); err != ErrUnknownSimulation {
		t.Fatalf("expected ErrUnknownSimulation after stop, got %v", err)
	}
	if err := c.StopSimulation(id); err != ErrUnknownSimulation {
		t.Fatalf("expected ErrUnknownSimulation on double stop, got %v", err)
	}
}

func TestController_LogsFilterIsCaseInsensitive(t *testing.T) {
	c := New(nil, nil)
	id, err := c.LoadConfig(types.SimulationConfig{
		NetworkConfig:     types.NetworkConfig{NodeCount: 2, Topology: types.TopologyLine},
		AlgorithmId:       algorithm.FloodingId,
		DefaultParameters: types.SimulationParameters{MaxSteps: 5},
	})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if err := c.StartSimulation(id, types.SimulationParameters{MaxSteps: 5}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.StopSimulation(id)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m, _ := c.GetMetrics(id)
		if m.Converged {
			break
		}
		time.Sleep(time.Millisecond)
	}

	logs, err := c.GetLogs(id, "message_sent")
	if err != nil {
		t.Fatalf("getLogs: %v", err)
	}
	if len(logs) == 0 {
		t.Fatal("expected at least one matching log line")
	}
	for _, line := range logs {
		if !strings.Contains(strings.ToLower(line), "message_sent") {
			t.Fatalf("log line does not match filter: %s", line)
		}
	}
}
