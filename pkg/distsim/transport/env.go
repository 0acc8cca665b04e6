package transport

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jabolina/distsim/pkg/distsim/types"
)

// UDPConfig is everything needed to bind and address one UDP endpoint.
type UDPConfig struct {
	NodeId   types.NodeId
	Port     int
	Resolver Resolver
}

// LoadUDPConfigFromEnv implements the §6 "Environment/config keys
// recognized" list for the UDP transport: NODE_ID, UDP_PORT, HOST_TEMPLATE,
// optional PEERS, NODE_COUNT, MIN_ID. Callers choose the resolver shape by
// the presence of PEERS. Environment loading in this file covers transport
// settings only (UDP, queues, virtual faults); SimulationConfig itself is
// always loaded in-process via loadConfig, never from the environment or a
// file.
func LoadUDPConfigFromEnv() (UDPConfig, error) {
	nodeId := types.NodeId(os.Getenv("NODE_ID"))
	if nodeId.Blank() {
		return UDPConfig{}, fmt.Errorf("NODE_ID is required")
	}

	port, err := intEnv("UDP_PORT", 9000)
	if err != nil {
		return UDPConfig{}, err
	}

	var resolver Resolver
	if peers := os.Getenv("PEERS"); peers != "" {
		resolver, err = ParseExplicitResolver(peers)
		if err != nil {
			return UDPConfig{}, err
		}
	} else {
		template := os.Getenv("HOST_TEMPLATE")
		if template == "" {
			return UDPConfig{}, fmt.Errorf("either PEERS or HOST_TEMPLATE must be set")
		}
		hasRange := false
		var minId, maxId int64
		if nodeCountStr := os.Getenv("NODE_COUNT"); nodeCountStr != "" {
			nodeCount, err := strconv.ParseInt(nodeCountStr, 10, 64)
			if err != nil {
				return UDPConfig{}, fmt.Errorf("invalid NODE_COUNT: %w", err)
			}
			minId = 0
			if minIdStr := os.Getenv("MIN_ID"); minIdStr != "" {
				minId, err = strconv.ParseInt(minIdStr, 10, 64)
				if err != nil {
					return UDPConfig{}, fmt.Errorf("invalid MIN_ID: %w", err)
				}
			}
			maxId = minId + nodeCount - 1
			hasRange = true
		}
		resolver = NewPatternResolver(template, port, hasRange, minId, maxId)
	}

	return UDPConfig{NodeId: nodeId, Port: port, Resolver: resolver}, nil
}

// LoadQueueConfigFromEnv implements the queue-related keys:
// QUEUE_OUT_CAPACITY, QUEUE_IN_CAPACITY, QUEUE_OVERFLOW_POLICY,
// QUEUE_BLOCK_TIMEOUT_MS. Returns the (out, in) configuration pair.
func LoadQueueConfigFromEnv() (out, in QueueConfig, err error) {
	policy, err := policyEnv("QUEUE_OVERFLOW_POLICY", DropNewest)
	if err != nil {
		return QueueConfig{}, QueueConfig{}, err
	}
	timeoutMs, err := intEnv("QUEUE_BLOCK_TIMEOUT_MS", int(DefaultBlockTimeout/time.Millisecond))
	if err != nil {
		return QueueConfig{}, QueueConfig{}, err
	}
	outCap, err := intEnv("QUEUE_OUT_CAPACITY", DefaultCapacity)
	if err != nil {
		return QueueConfig{}, QueueConfig{}, err
	}
	inCap, err := intEnv("QUEUE_IN_CAPACITY", DefaultCapacity)
	if err != nil {
		return QueueConfig{}, QueueConfig{}, err
	}

	base := QueueConfig{Policy: policy, BlockTimeout: time.Duration(timeoutMs) * time.Millisecond}
	out = base
	out.Capacity = outCap
	in = base
	in.Capacity = inCap
	return out, in, nil
}

// LoadFaultConfigFromEnv implements the virtual fault-injection keys:
// VIRTUAL_DROP_PROB, VIRTUAL_DELAY_MS (or VIRTUAL_DELAY_MIN_MS/
// VIRTUAL_DELAY_MAX_MS), VIRTUAL_REORDER_WINDOW, VIRTUAL_DUP_PROB,
// VIRTUAL_SEED.
func LoadFaultConfigFromEnv() (FaultConfig, error) {
	dropProb, err := floatEnv("VIRTUAL_DROP_PROB", 0)
	if err != nil {
		return FaultConfig{}, err
	}
	dupProb, err := floatEnv("VIRTUAL_DUP_PROB", 0)
	if err != nil {
		return FaultConfig{}, err
	}
	reorderWindow, err := intEnv("VIRTUAL_REORDER_WINDOW", 0)
	if err != nil {
		return FaultConfig{}, err
	}
	seed, err := intEnv("VIRTUAL_SEED", 42)
	if err != nil {
		return FaultConfig{}, err
	}

	minDelay, maxDelay := 0, 0
	if fixed := os.Getenv("VIRTUAL_DELAY_MS"); fixed != "" {
		minDelay, err = intEnv("VIRTUAL_DELAY_MS", 0)
		if err != nil {
			return FaultConfig{}, err
		}
		maxDelay = minDelay
	} else {
		minDelay, err = intEnv("VIRTUAL_DELAY_MIN_MS", 0)
		if err != nil {
			return FaultConfig{}, err
		}
		maxDelay, err = intEnv("VIRTUAL_DELAY_MAX_MS", 0)
		if err != nil {
			return FaultConfig{}, err
		}
	}

	return FaultConfig{
		DropProbability: dropProb,
		MinDelay:        time.Duration(minDelay) * time.Millisecond,
		MaxDelay:        time.Duration(maxDelay) * time.Millisecond,
		ReorderWindow:   reorderWindow,
		DupProbability:  dupProb,
		Seed:            int64(seed),
	}, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func policyEnv(key string, def OverflowPolicy) (OverflowPolicy, error) {
	v := os.Getenv(key)
	switch v {
	case "":
		return def, nil
	case "DROP_NEWEST":
		return DropNewest, nil
	case "DROP_OLDEST":
		return DropOldest, nil
	case "BLOCK":
		return Block, nil
	default:
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
}
