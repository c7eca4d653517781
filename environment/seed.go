package environment

// deriveSeed produces a deterministic per-rollout seed from
// (species, individual, generation, rollout), per spec.md §4.14's "distinct
// but deterministic seeds derived from" those four coordinates. No library
// in the retrieval pack offers a counter-based RNG (Philox or otherwise);
// splitmix64 is the standard public-domain construction for turning a small
// integer counter into a well-mixed 64-bit seed, and is simple enough to
// keep as plain arithmetic rather than reach for a dependency that doesn't
// exist in the pack.
func deriveSeed(speciesID, individualID, generation, rollout uint32) uint64 {
	x := uint64(speciesID)<<48 ^ uint64(individualID)<<32 ^ uint64(generation)<<16 ^ uint64(rollout)
	return splitmix64(x)
}

func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z ^= z >> 31
	return z
}
