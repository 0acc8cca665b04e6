package transport

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jabolina/distsim/pkg/distsim/types"
)

// Resolver maps a NodeId to a UDP (host, port) pair. Resolution returning
// false is a drop, never a fatal error: the two recognized shapes below
// (explicit map vs. pattern+optional range) both answer "I don't know that
// id" the same way.
type Resolver interface {
	Resolve(id types.NodeId) (host string, port int, ok bool)
}

// ExplicitResolver is built from a comma-separated "id:host:port,..." spec,
// used whenever PEERS is set.
type ExplicitResolver struct {
	peers map[types.NodeId]hostPort
}

type hostPort struct {
	host string
	port int
}

// ParseExplicitResolver parses the PEERS environment value.
func ParseExplicitResolver(spec string) (*ExplicitResolver, error) {
	peers := make(map[types.NodeId]hostPort)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed peer entry %q, want id:host:port", entry)
		}
		port, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("malformed port in peer entry %q: %w", entry, err)
		}
		peers[types.NodeId(parts[0])] = hostPort{host: parts[1], port: port}
	}
	return &ExplicitResolver{peers: peers}, nil
}

// Resolve implements Resolver.
func (r *ExplicitResolver) Resolve(id types.NodeId) (string, int, bool) {
	hp, ok := r.peers[id]
	if !ok {
		return "", 0, false
	}
	return hp.host, hp.port, true
}

// PatternResolver resolves a NodeId via a "template-with-{ID}" host pattern
// and a shared port, optionally bounded to a contiguous range of numeric
// node indices. A node whose numeric suffix falls outside [MinId, MaxId]
// (when the range is set) fails to resolve.
type PatternResolver struct {
	template     string
	port         int
	hasRange     bool
	minId, maxId int64
}

// NewPatternResolver builds a resolver from HOST_TEMPLATE/UDP_PORT and an
// optional bound. Pass hasRange=false to leave the index range unbounded.
func NewPatternResolver(template string, port int, hasRange bool, minId, maxId int64) *PatternResolver {
	return &PatternResolver{template: template, port: port, hasRange: hasRange, minId: minId, maxId: maxId}
}

// Resolve implements Resolver.
func (r *PatternResolver) Resolve(id types.NodeId) (string, int, bool) {
	if r.hasRange {
		v, ok := id.NumericSuffix()
		if !ok || v < r.minId || v > r.maxId {
			return "", 0, false
		}
	}
	host := strings.ReplaceAll(r.template, "{ID}", string(id))
	return host, r.port, true
}
