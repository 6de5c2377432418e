// Package util contains internal helpers (hashing, sharding, padding, key checks).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"hash/maphash"
	"math"
)

// NewHasher returns the default key hasher. Basic key kinds take the FNV-1a
// fast path; any other comparable key (pointers, structs,
// arrays) is hashed with maphash.Comparable under a seed drawn once here.
func NewHasher[K comparable]() func(K) uint64 {
	seed := maphash.MakeSeed()
	return func(k K) uint64 {
		if h, ok := fnv64a(any(k)); ok {
			return h
		}
		return maphash.Comparable(seed, k)
	}
}

// fnv64a hashes the basic key kinds with 64-bit FNV-1a: string,
// [16|32|64]byte, bool, all int/uint widths, float32/float64 and uintptr.
// Stringer keys are not special-cased: a pointer key's String may change
// while the key is stored.
func fnv64a(k any) (uint64, bool) {
	switch v := k.(type) {
	case string:
		return fnv64aFromString(v), true
	case [16]byte:
		return fnv64aFromBytes(v[:]), true
	case [32]byte:
		return fnv64aFromBytes(v[:]), true
	case [64]byte:
		return fnv64aFromBytes(v[:]), true

	case bool:
		if v {
			return fnv64aFromUint64(1), true
		}
		return fnv64aFromUint64(0), true

	// Integer-like keys: hash little-endian bytes of the value.
	case uint8:
		return fnv64aFromUint64(uint64(v)), true
	case uint16:
		return fnv64aFromUint64(uint64(v)), true
	case uint32:
		return fnv64aFromUint64(uint64(v)), true
	case uint64:
		return fnv64aFromUint64(v), true
	case uint:
		return fnv64aFromUint64(uint64(v)), true
	case uintptr:
		return fnv64aFromUint64(uint64(v)), true
	case int8:
		return fnv64aFromUint64(uint64(uint8(v))), true
	case int16:
		return fnv64aFromUint64(uint64(uint16(v))), true
	case int32:
		return fnv64aFromUint64(uint64(uint32(v))), true
	case int64:
		return fnv64aFromUint64(uint64(v)), true
	case int:
		return fnv64aFromUint64(uint64(v)), true
	// -0 == +0, so both must land on the same shard.
	case float32:
		if v == 0 {
			v = 0
		}
		return fnv64aFromUint64(uint64(math.Float32bits(v))), true
	case float64:
		if v == 0 {
			v = 0
		}
		return fnv64aFromUint64(math.Float64bits(v)), true

	default:
		return 0, false
	}
}

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

func fnv64aFromBytes(b []byte) uint64 {
	h := uint64(fnvOffset64)
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}

// fnv64aFromString walks the string directly so string keys do not allocate.
func fnv64aFromString(s string) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}

func fnv64aFromUint64(u uint64) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < 8; i++ {
		h ^= uint64(byte(u))
		h *= fnvPrime64
		u >>= 8
	}
	return h
}
