package rpak

import "github.com/spaolacci/murmur3"

// StreamCacheHashSeed is the fixed MurmurHash3-128 seed the stream cache
// hashes every payload with, matching the original tool's MURMUR_SEED.
const StreamCacheHashSeed = 0x165DCA75

// Hash128 is a MurmurHash3 x64-128 digest, stored as two little-endian
// 64-bit halves so it round-trips through the .starmap file format byte for
// byte (spec §3, §6).
type Hash128 struct {
	Low  uint64
	High uint64
}

// MurmurHash3_128 computes the canonical x64-128 variant of MurmurHash3 over
// data, seeded with StreamCacheHashSeed.
func MurmurHash3_128(data []byte) Hash128 {
	h1, h2 := murmur3.Sum128WithSeed(data, StreamCacheHashSeed)
	return Hash128{Low: h1, High: h2}
}

func (h Hash128) Equal(o Hash128) bool {
	return h.Low == o.Low && h.High == o.High
}
