package policy

import (
	"math"

	"farol/internal/grid"
)

// Network is an externally trained model mapping features to action scores.
type Network interface {
	Activate(inputs []float64) ([]float64, error)
}

// FeatureSource builds the network input vector for an agent.
type FeatureSource interface {
	Features(body grid.Body) []float64
}

// Neural asks the environment for features, runs the network and takes the
// arg-max output as the heading (0=N, 1=S, 2=W, 3=E).
type Neural struct {
	net      Network
	features FeatureSource
	body     grid.Body
}

func NewNeural(net Network, features FeatureSource, body grid.Body) *Neural {
	return &Neural{net: net, features: features, body: body}
}

// Decide ignores obs; the environment's feature vector is the network input.
// Activation errors, NaN scores and out-of-range winners yield Stay.
func (p *Neural) Decide(grid.Observation) grid.Action {
	outputs, err := p.net.Activate(p.features.Features(p.body))
	if err != nil {
		return grid.Stay
	}
	best := -1
	for i, v := range outputs {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || v > outputs[best] {
			best = i
		}
	}
	if best < 0 || best >= len(grid.Cardinals) {
		return grid.Stay
	}
	return grid.Cardinals[best]
}
