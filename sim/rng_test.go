package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionedRNG_SameSeedSameStreams(t *testing.T) {
	a, b := NewPartitionedRNG(42), NewPartitionedRNG(42)
	for i := 0; i < 3; i++ {
		assert.Equal(t, a.Stream(StreamTransport).Float64(), b.Stream(StreamTransport).Float64())
	}
	assert.Equal(t, SimulationKey(42), a.Key())
}

func TestPartitionedRNG_StreamsAreIsolated(t *testing.T) {
	// GIVEN a run that drew heavily from the demand stream
	busy := NewPartitionedRNG(42)
	for i := 0; i < 10; i++ {
		busy.Stream(StreamDemand).Float64()
	}

	// WHEN the transport stream is used for the first time
	got := busy.Stream(StreamTransport).Float64()

	// THEN it starts where a fresh transport stream starts
	assert.Equal(t, NewPartitionedRNG(42).Stream(StreamTransport).Float64(), got)
}

func TestPartitionedRNG_DemandUsesTheSeed(t *testing.T) {
	for _, seed := range []int64{42, 0, -7} {
		demand := NewPartitionedRNG(seed).Stream(StreamDemand)
		direct := rand.New(rand.NewSource(seed))
		for i := 0; i < 10; i++ {
			assert.Equal(t, direct.Int63(), demand.Int63())
		}
	}
}

func TestPartitionedRNG_StreamCreatedOnceOnDemand(t *testing.T) {
	rng := NewPartitionedRNG(42)
	assert.Empty(t, rng.streams)

	first := rng.Stream("shop")
	assert.Same(t, first, rng.Stream("shop"))
	assert.Len(t, rng.streams, 1)
}

func TestPartitionedRNG_DistinctSeedsPerStream(t *testing.T) {
	rng := NewPartitionedRNG(math.MinInt64)
	seen := make(map[int64]string)
	for _, name := range []string{StreamDemand, StreamTransport, "shop", "depot", ""} {
		s := rng.streamSeed(name)
		if other, ok := seen[s]; ok {
			t.Errorf("streams %q and %q share seed %d", name, other, s)
		}
		seen[s] = name
	}
	v := rng.Stream(StreamTransport).Float64()
	assert.GreaterOrEqual(t, v, 0.0)
	assert.Less(t, v, 1.0)
}

func BenchmarkPartitionedRNG_StreamCacheHit(b *testing.B) {
	rng := NewPartitionedRNG(42)
	rng.Stream(StreamDemand)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rng.Stream(StreamDemand)
	}
}
