package loadbalancer

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"
)

const (
	StrategyRandom     = "random"
	StrategyConsistent = "consistent"

	virtualNodesPerEdge = 64
)

// NewEdgeSelector builds the selector for strategy over locations.
func NewEdgeSelector(strategy string, locations []string) (ports.EdgeSelector, error) {
	if len(locations) == 0 {
		return nil, fmt.Errorf("no edge locations configured")
	}

	switch strategy {
	case "", StrategyRandom:
		return NewRandomSelector(locations), nil
	case StrategyConsistent:
		return NewConsistentHash(locations), nil
	default:
		return nil, fmt.Errorf("unknown edge selection strategy %q", strategy)
	}
}

// RandomSelector assigns every new selection to a uniformly random edge.
type RandomSelector struct {
	locations []string
}

func NewRandomSelector(locations []string) *RandomSelector {
	return &RandomSelector{locations: append([]string(nil), locations...)}
}

func (s *RandomSelector) Select(domain.SessionID) string {
	return s.locations[rand.IntN(len(s.locations))]
}

func (s *RandomSelector) Locations() []string {
	return append([]string(nil), s.locations...)
}

// ConsistentHash maps session ids onto a ring of virtual nodes so a session keeps
// its edge and only a fraction of sessions move when an edge is added or removed.
type ConsistentHash struct {
	locations []string
	ring      []uint64
	owners    map[uint64]string
}

func NewConsistentHash(locations []string) *ConsistentHash {
	ch := &ConsistentHash{
		locations: append([]string(nil), locations...),
		owners:    make(map[uint64]string, len(locations)*virtualNodesPerEdge),
	}

	for _, loc := range locations {
		for v := 0; v < virtualNodesPerEdge; v++ {
			h := hashKey(loc + "#" + strconv.Itoa(v))
			if _, taken := ch.owners[h]; taken {
				continue
			}
			ch.owners[h] = loc
			ch.ring = append(ch.ring, h)
		}
	}
	sort.Slice(ch.ring, func(i, j int) bool { return ch.ring[i] < ch.ring[j] })

	return ch
}

func (ch *ConsistentHash) Select(id domain.SessionID) string {
	if len(ch.ring) == 0 {
		return ""
	}

	h := hashKey(string(id))
	i := sort.Search(len(ch.ring), func(i int) bool { return ch.ring[i] >= h })
	if i == len(ch.ring) {
		i = 0
	}
	return ch.owners[ch.ring[i]]
}

func (ch *ConsistentHash) Locations() []string {
	return append([]string(nil), ch.locations...)
}

func hashKey(key string) uint64 {
	sum := sha256.Sum256([]byte(key))
	return binary.BigEndian.Uint64(sum[:8])
}

// Statuses reports simulated health for each edge. Latency and load are stable per
// location so repeated calls are comparable.
func Statuses(locations []string) []domain.EdgeStatus {
	out := make([]domain.EdgeStatus, len(locations))
	for i, loc := range locations {
		h := hashKey(loc)
		out[i] = domain.EdgeStatus{
			Location:  loc,
			Status:    "healthy",
			LatencyMs: 10 + int(h%40),
			Load:      float64((h>>8)%70) / 100,
		}
	}
	return out
}
