package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey is the seed of a run. Two runs of the same scenario with the
// same key deliver the same messages at the same simulated times.
type SimulationKey int64

// Named random streams.
const (
	// StreamDemand drives autonomous demand generation. It is seeded with the
	// key itself, so customer demand depends only on the scenario seed.
	StreamDemand = "demand"
	// StreamTransport drives random transport choices.
	StreamTransport = "transport"
)

// PartitionedRNG hands out one *rand.Rand per named stream. Every stream has
// its own seed, so drawing from one never shifts another: adding a random
// transport choice to a scenario leaves its demand unchanged.
//
// Not safe for concurrent use; the engine is single-threaded.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[string]*rand.Rand
}

// NewPartitionedRNG creates the streams of a run seeded with seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{
		key:     SimulationKey(seed),
		streams: make(map[string]*rand.Rand),
	}
}

// Stream returns the generator of the named stream, creating it on first use.
// Repeated calls return the same instance.
func (p *PartitionedRNG) Stream(name string) *rand.Rand {
	r, ok := p.streams[name]
	if !ok {
		r = rand.New(rand.NewSource(p.streamSeed(name)))
		p.streams[name] = r
	}
	return r
}

// Key returns the run seed.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// streamSeed is the key for the demand stream and key XOR fnv1a64(name) otherwise.
func (p *PartitionedRNG) streamSeed(name string) int64 {
	if name == StreamDemand {
		return int64(p.key)
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(p.key) ^ int64(h.Sum64())
}
