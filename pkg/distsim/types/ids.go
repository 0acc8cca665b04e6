package types

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NodeId is an opaque logical node identity. The reference convention is
// "node-<N>", and ordering for "max id" logic is numeric on the trailing
// integer suffix rather than lexicographic.
type NodeId string

// Blank reports whether the id carries no content.
func (n NodeId) Blank() bool {
	return strings.TrimSpace(string(n)) == ""
}

// NumericSuffix extracts the trailing run of decimal digits from the id,
// e.g. "node-10" -> (10, true). Returns (0, false) when the id has no
// trailing digits.
func (n NodeId) NumericSuffix() (int64, bool) {
	s := string(n)
	end := len(s)
	start := end
	for start > 0 && s[start-1] >= '0' && s[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}
	v, err := strconv.ParseInt(s[start:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Greater reports whether a orders strictly after b, comparing numerically
// on the trailing integer suffix. A lexicographic comparison would wrongly
// place "node-10" before "node-2"; this never happens here. When either id
// lacks a numeric suffix, falls back to plain string comparison. Ids that
// all carry a numeric suffix are totally ordered; a mix of ids with and
// without one can compare inconsistently (a cycle is possible).
func Greater(a, b NodeId) bool {
	av, aok := a.NumericSuffix()
	bv, bok := b.NumericSuffix()
	if aok && bok {
		return av > bv
	}
	return string(a) > string(b)
}

// MaxNodeId returns the numerically greatest id in ids. Panics on an empty
// slice; callers are expected to only call this over a non-empty topology.
func MaxNodeId(ids []NodeId) NodeId {
	max := ids[0]
	for _, id := range ids[1:] {
		if Greater(id, max) {
			max = id
		}
	}
	return max
}

// SimulationId is an opaque UUID-like token identifying one independent
// simulation. A fresh one is minted on every initializeNetwork/loadConfig
// call; no two simulations ever share topology, events or nodes.
type SimulationId string

// NewSimulationId mints a fresh SimulationId.
func NewSimulationId() SimulationId {
	return SimulationId(uuid.NewString())
}
