package engine

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/jabolina/distsim/pkg/distsim/types"
)

// BuildTopology deterministically generates the neighbor set for every node
// in a population of the given size and shape. The returned map always has
// exactly one entry per node, in "node-<i>" form, 0-indexed.
func BuildTopology(config types.NetworkConfig, seed int64) map[types.NodeId][]types.NodeId {
	switch config.Topology {
	case types.TopologyLine:
		return lineTopology(config.NodeCount)
	case types.TopologyRing:
		return ringTopology(config.NodeCount)
	case types.TopologyGrid:
		return gridTopology(config.NodeCount)
	case types.TopologyRandom:
		return randomTopology(config.NodeCount, seed)
	default:
		return nil
	}
}

func nodeId(i int) types.NodeId {
	return types.NodeId(fmt.Sprintf("node-%d", i))
}

func lineTopology(n int) map[types.NodeId][]types.NodeId {
	out := make(map[types.NodeId][]types.NodeId, n)
	for i := 0; i < n; i++ {
		var ns []types.NodeId
		if i > 0 {
			ns = append(ns, nodeId(i-1))
		}
		if i < n-1 {
			ns = append(ns, nodeId(i+1))
		}
		out[nodeId(i)] = ns
	}
	return out
}

func ringTopology(n int) map[types.NodeId][]types.NodeId {
	out := make(map[types.NodeId][]types.NodeId, n)
	if n == 1 {
		out[nodeId(0)] = nil
		return out
	}
	for i := 0; i < n; i++ {
		prev := (i - 1 + n) % n
		next := (i + 1) % n
		out[nodeId(i)] = []types.NodeId{nodeId(prev), nodeId(next)}
	}
	return out
}

func gridTopology(n int) map[types.NodeId][]types.NodeId {
	rows := int(math.Sqrt(float64(n)))
	if rows < 1 {
		rows = 1
	}
	cols := int(math.Ceil(float64(n) / float64(rows)))

	index := func(r, c int) (int, bool) {
		if r < 0 || c < 0 || c >= cols {
			return 0, false
		}
		i := r*cols + c
		if i >= n {
			return 0, false
		}
		return i, true
	}

	out := make(map[types.NodeId][]types.NodeId, n)
	for i := 0; i < n; i++ {
		r, c := i/cols, i%cols
		var ns []types.NodeId
		for _, d := range [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			if j, ok := index(r+d[0], c+d[1]); ok {
				ns = append(ns, nodeId(j))
			}
		}
		out[nodeId(i)] = ns
	}
	return out
}

// randomTopology builds a spanning tree (each node i>0 connects to a
// uniformly chosen previous j<i) then adds each remaining pair with
// probability p≈0.3, per the documented generation rule. Edges are
// bidirectional.
func randomTopology(n int, seed int64) map[types.NodeId][]types.NodeId {
	const extraEdgeProbability = 0.3
	rng := rand.New(rand.NewSource(seed))

	adjacency := make(map[int]map[int]bool, n)
	for i := 0; i < n; i++ {
		adjacency[i] = make(map[int]bool)
	}

	connect := func(a, b int) {
		adjacency[a][b] = true
		adjacency[b][a] = true
	}

	for i := 1; i < n; i++ {
		j := rng.Intn(i)
		connect(i, j)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if adjacency[i][j] {
				continue
			}
			if rng.Float64() < extraEdgeProbability {
				connect(i, j)
			}
		}
	}

	out := make(map[types.NodeId][]types.NodeId, n)
	for i := 0; i < n; i++ {
		var ns []types.NodeId
		for j := 0; j < n; j++ {
			if adjacency[i][j] {
				ns = append(ns, nodeId(j))
			}
		}
		out[nodeId(i)] = ns
	}
	return out
}
