package util

import (
	"math/bits"
	"runtime"
)

// maxShards caps automatic and explicit shard counts.
const maxShards = 256

// ReasonableShardCount picks a default shard count from CPU parallelism:
// nextPow2(2*GOMAXPROCS), clamped to [1..256].
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	return clampShards(int(NextPow2(uint64(p * 2))))
}

// ShardCount normalizes a requested shard count: <= 0 selects
// ReasonableShardCount, anything else is rounded up to a power of two.
func ShardCount(requested int) int {
	if requested <= 0 {
		return ReasonableShardCount()
	}
	return clampShards(int(NextPow2(uint64(requested))))
}

func clampShards(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxShards {
		return maxShards
	}
	return n
}

// IsPowerOfTwo reports whether x is a power of two (> 0).
func IsPowerOfTwo(x uint64) bool {
	return x != 0 && x&(x-1) == 0
}

// NextPow2 returns the smallest power of two >= x, clamped to 1<<63.
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	if x > 1<<63 {
		return 1 << 63
	}
	return 1 << bits.Len64(x-1)
}

// ShardIndex maps a 64-bit hash to a shard index.
// Power-of-two shard counts take the mask path; others fall back to modulo.
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	if IsPowerOfTwo(uint64(shards)) {
		return int(hash & uint64(shards-1))
	}
	return int(hash % uint64(shards))
}
