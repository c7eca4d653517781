package evolve

import (
	"math/rand"
	"sort"

	"github.com/evolvatron/evolvatron/neural"
)

// Tournament draws k competitors uniformly with replacement from pool
// (clamped to len(pool)) and returns the highest-fitness competitor, per
// spec.md §4.10.
func Tournament(pool []*neural.Individual, k int, rng *rand.Rand) *neural.Individual {
	if k > len(pool) {
		k = len(pool)
	}
	best := pool[rng.Intn(len(pool))]
	for i := 1; i < k; i++ {
		cand := pool[rng.Intn(len(pool))]
		if cand.Fitness > best.Fitness {
			best = cand
		}
	}
	return best
}

// RankDescending returns indices into individuals sorted by descending
// fitness, per spec.md §4.10's "Rank" rule.
func RankDescending(individuals []*neural.Individual) []int {
	idx := make([]int, len(individuals))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return individuals[idx[a]].Fitness > individuals[idx[b]].Fitness })
	return idx
}

// RankProbability returns P(i) = (n - rank(i)) / (n*(n+1)/2) for a
// zero-based rank (0 = best), per spec.md §4.10.
func RankProbability(rank, n int) float32 {
	if n <= 0 {
		return 0
	}
	denom := float32(n) * float32(n+1) / 2
	return float32(n-rank) / denom
}

// ParentPool returns the top floor(pct * n) individuals by fitness (minimum
// 1), the pool offspring selection draws from, per spec.md §4.10.
func ParentPool(individuals []*neural.Individual, pct float32) []*neural.Individual {
	ranked := RankDescending(individuals)
	n := len(individuals)
	poolSize := int(float32(n) * pct)
	if poolSize < 1 {
		poolSize = 1
	}
	if poolSize > n {
		poolSize = n
	}
	pool := make([]*neural.Individual, poolSize)
	for i := 0; i < poolSize; i++ {
		pool[i] = individuals[ranked[i]]
	}
	return pool
}

// Elites returns deep clones of the top E individuals by fitness, unchanged
// copies destined directly for the next generation, per spec.md §4.10.
func Elites(individuals []*neural.Individual, e int) []*neural.Individual {
	ranked := RankDescending(individuals)
	if e > len(ranked) {
		e = len(ranked)
	}
	out := make([]*neural.Individual, e)
	for i := 0; i < e; i++ {
		out[i] = individuals[ranked[i]].Clone()
	}
	return out
}
