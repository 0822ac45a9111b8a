// Package nn evaluates the feed-forward genomes evolved for neural agents.
package nn

import (
	"errors"
	"fmt"
	"math/rand"

	"farol/internal/model"
)

// saturationLimit bounds neuron pre-activation totals.
const saturationLimit = 1000.0

var ErrInvalidGenome = errors.New("invalid genome")

// Forward evaluates neurons in slice order. Neurons present in inputByNeuron
// keep their given value; every other neuron sums its enabled incoming
// synapses plus bias and applies its activation.
func Forward(genome model.Genome, inputByNeuron map[string]float64) (map[string]float64, error) {
	values := make(map[string]float64, len(genome.Neurons))
	for neuronID, value := range inputByNeuron {
		values[neuronID] = value
	}

	incoming := make(map[string][]model.Synapse, len(genome.Neurons))
	for _, synapse := range genome.Synapses {
		if !synapse.Enabled {
			continue
		}
		incoming[synapse.To] = append(incoming[synapse.To], synapse)
	}

	for _, neuron := range genome.Neurons {
		if _, fixedInput := inputByNeuron[neuron.ID]; fixedInput {
			continue
		}

		total := neuron.Bias
		for _, synapse := range incoming[neuron.ID] {
			total += values[synapse.From] * synapse.Weight
		}

		fn, err := GetActivation(neuron.Activation)
		if err != nil {
			return nil, fmt.Errorf("neuron %s: %w", neuron.ID, err)
		}
		values[neuron.ID] = fn(saturate(total))
	}

	return values, nil
}

func saturate(v float64) float64 {
	if v > saturationLimit {
		return saturationLimit
	}
	if v < -saturationLimit {
		return -saturationLimit
	}
	return v
}

// Network binds a genome to its ordered sensor and actuator neurons so it can
// be driven with plain feature vectors.
type Network struct {
	genome model.Genome
}

func NewNetwork(genome model.Genome) (*Network, error) {
	if len(genome.SensorIDs) == 0 || len(genome.ActuatorIDs) == 0 {
		return nil, fmt.Errorf("%w: %s needs sensor and actuator neurons", ErrInvalidGenome, genome.ID)
	}
	known := make(map[string]struct{}, len(genome.Neurons))
	for _, neuron := range genome.Neurons {
		if _, dup := known[neuron.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate neuron %s", ErrInvalidGenome, neuron.ID)
		}
		if _, err := GetActivation(neuron.Activation); err != nil {
			return nil, fmt.Errorf("%w: neuron %s: %v", ErrInvalidGenome, neuron.ID, err)
		}
		known[neuron.ID] = struct{}{}
	}
	for _, id := range append(append([]string(nil), genome.SensorIDs...), genome.ActuatorIDs...) {
		if _, ok := known[id]; !ok {
			return nil, fmt.Errorf("%w: unknown neuron %s", ErrInvalidGenome, id)
		}
	}
	for _, synapse := range genome.Synapses {
		if _, ok := known[synapse.From]; !ok {
			return nil, fmt.Errorf("%w: synapse %s from unknown neuron %s", ErrInvalidGenome, synapse.ID, synapse.From)
		}
		if _, ok := known[synapse.To]; !ok {
			return nil, fmt.Errorf("%w: synapse %s to unknown neuron %s", ErrInvalidGenome, synapse.ID, synapse.To)
		}
	}
	return &Network{genome: genome}, nil
}

func (n *Network) Genome() model.Genome { return n.genome }
func (n *Network) Inputs() int          { return len(n.genome.SensorIDs) }
func (n *Network) Outputs() int         { return len(n.genome.ActuatorIDs) }

// Activate feeds inputs to the sensor neurons in order and returns the
// actuator values in order.
func (n *Network) Activate(inputs []float64) ([]float64, error) {
	if len(inputs) != len(n.genome.SensorIDs) {
		return nil, fmt.Errorf("input size mismatch: got=%d want=%d", len(inputs), len(n.genome.SensorIDs))
	}
	byNeuron := make(map[string]float64, len(inputs))
	for i, id := range n.genome.SensorIDs {
		byNeuron[id] = inputs[i]
	}
	values, err := Forward(n.genome, byNeuron)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(n.genome.ActuatorIDs))
	for i, id := range n.genome.ActuatorIDs {
		out[i] = values[id]
	}
	return out, nil
}

// NewDenseGenome wires every input to every tanh output with weights drawn
// uniformly from [-1, 1].
func NewDenseGenome(id string, inputs, outputs int, rng *rand.Rand) model.Genome {
	genome := model.Genome{
		VersionedRecord: model.VersionedRecord{SchemaVersion: 1, CodecVersion: 1},
		ID:              id,
	}
	for i := 0; i < inputs; i++ {
		neuronID := fmt.Sprintf("i%d", i)
		genome.Neurons = append(genome.Neurons, model.Neuron{ID: neuronID, Activation: "identity"})
		genome.SensorIDs = append(genome.SensorIDs, neuronID)
	}
	for o := 0; o < outputs; o++ {
		neuronID := fmt.Sprintf("o%d", o)
		genome.Neurons = append(genome.Neurons, model.Neuron{
			ID:         neuronID,
			Activation: "tanh",
			Bias:       rng.Float64()*2 - 1,
		})
		genome.ActuatorIDs = append(genome.ActuatorIDs, neuronID)
		for i := 0; i < inputs; i++ {
			genome.Synapses = append(genome.Synapses, model.Synapse{
				ID:      fmt.Sprintf("s-i%d-o%d", i, o),
				From:    fmt.Sprintf("i%d", i),
				To:      neuronID,
				Weight:  rng.Float64()*2 - 1,
				Enabled: true,
			})
		}
	}
	return genome
}
