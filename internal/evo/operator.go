// Package evo holds the small genetic harness used to evolve neural agents:
// weight and bias perturbation, parent selection and generation replacement.
package evo

import (
	"context"
	"errors"
	"math"
	"math/rand"

	"farol/internal/model"
)

var (
	ErrNoSynapses = errors.New("genome has no synapses")
	ErrNoNeurons  = errors.New("genome has no neurons")
)

type Operator interface {
	Name() string
	Apply(ctx context.Context, genome model.Genome) (model.Genome, error)
}

// PerturbWeightsProportional mutates each synapse with probability
// 1/sqrt(total_weights). At least one synapse is always perturbed.
type PerturbWeightsProportional struct {
	Rand     *rand.Rand
	MaxDelta float64
}

func (o *PerturbWeightsProportional) Name() string {
	return "perturb_weights_proportional"
}

func (o *PerturbWeightsProportional) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if len(genome.Synapses) == 0 {
		return model.Genome{}, ErrNoSynapses
	}
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	if o.MaxDelta <= 0 {
		return model.Genome{}, errors.New("max delta must be > 0")
	}

	mutated := cloneGenome(genome)
	mp := 1 / math.Sqrt(float64(len(mutated.Synapses)))
	mutatedCount := 0
	for i := range mutated.Synapses {
		if o.Rand.Float64() >= mp {
			continue
		}
		mutated.Synapses[i].Weight += o.delta()
		mutatedCount++
	}
	if mutatedCount == 0 {
		idx := o.Rand.Intn(len(mutated.Synapses))
		mutated.Synapses[idx].Weight += o.delta()
	}
	return mutated, nil
}

func (o *PerturbWeightsProportional) delta() float64 {
	return (o.Rand.Float64()*2 - 1) * o.MaxDelta
}

// PerturbRandomBias shifts one non-input neuron bias by a uniform delta in
// [-MaxDelta, MaxDelta].
type PerturbRandomBias struct {
	Rand     *rand.Rand
	MaxDelta float64
}

func (o *PerturbRandomBias) Name() string {
	return "perturb_random_bias"
}

func (o *PerturbRandomBias) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	if o.MaxDelta <= 0 {
		return model.Genome{}, errors.New("max delta must be > 0")
	}
	candidates := biasCandidates(genome)
	if len(candidates) == 0 {
		return model.Genome{}, ErrNoNeurons
	}

	idx := candidates[o.Rand.Intn(len(candidates))]
	delta := (o.Rand.Float64()*2 - 1) * o.MaxDelta

	mutated := cloneGenome(genome)
	mutated.Neurons[idx].Bias += delta
	return mutated, nil
}

// biasCandidates skips sensor neurons, whose values are fixed by inputs.
func biasCandidates(genome model.Genome) []int {
	inputs := make(map[string]struct{}, len(genome.SensorIDs))
	for _, id := range genome.SensorIDs {
		inputs[id] = struct{}{}
	}
	out := make([]int, 0, len(genome.Neurons))
	for i, neuron := range genome.Neurons {
		if _, ok := inputs[neuron.ID]; ok {
			continue
		}
		out = append(out, i)
	}
	return out
}

func cloneGenome(g model.Genome) model.Genome {
	out := g
	out.Neurons = append([]model.Neuron(nil), g.Neurons...)
	out.Synapses = append([]model.Synapse(nil), g.Synapses...)
	out.SensorIDs = append([]string(nil), g.SensorIDs...)
	out.ActuatorIDs = append([]string(nil), g.ActuatorIDs...)
	return out
}
