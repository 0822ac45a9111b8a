package evo

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"farol/internal/model"
)

type ScoredGenome struct {
	Genome  model.Genome
	Fitness float64
}

// Rank sorts by fitness descending, breaking ties by genome ID.
func Rank(scored []ScoredGenome) []ScoredGenome {
	ranked := append([]ScoredGenome(nil), scored...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Fitness != ranked[j].Fitness {
			return ranked[i].Fitness > ranked[j].Fitness
		}
		return ranked[i].Genome.ID < ranked[j].Genome.ID
	})
	return ranked
}

// NextGeneration keeps the top elite genomes unchanged and fills the rest
// with mutated offspring of selected parents. Offspring IDs are derived from
// idPrefix and their index.
func NextGeneration(
	ctx context.Context,
	rng *rand.Rand,
	ranked []ScoredGenome,
	size int,
	eliteCount int,
	selector Selector,
	ops []Operator,
	idPrefix string,
) ([]model.Genome, error) {
	if size <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("at least one operator is required")
	}
	if eliteCount > size {
		eliteCount = size
	}
	if eliteCount > len(ranked) {
		eliteCount = len(ranked)
	}

	next := make([]model.Genome, 0, size)
	for i := 0; i < eliteCount; i++ {
		next = append(next, cloneGenome(ranked[i].Genome))
	}
	for len(next) < size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parent, err := selector.PickParent(rng, ranked, eliteCount)
		if err != nil {
			return nil, fmt.Errorf("select parent: %w", err)
		}
		op := ops[rng.Intn(len(ops))]
		child, err := op.Apply(ctx, parent)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op.Name(), err)
		}
		child.ID = fmt.Sprintf("%s-%d", idPrefix, len(next))
		next = append(next, child)
	}
	return next, nil
}
