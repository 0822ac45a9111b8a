package nn

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"
)

func TestBuiltinActivations(t *testing.T) {
	tests := []struct {
		act  string
		x    float64
		want float64
	}{
		{act: "identity", x: 2.5, want: 2.5},
		{act: "relu", x: -1, want: 0},
		{act: "relu", x: 3, want: 3},
		{act: "tanh", x: 0, want: 0},
		{act: "tanh", x: 1000, want: 1},
		{act: "sigmoid", x: 0, want: 0.5},
		{act: "gaussian", x: 0, want: 1},
		{act: "gaussian", x: 2, want: math.Exp(-4)},
		{act: "gaussian", x: -2, want: math.Exp(-4)},
		{act: "sin", x: math.Pi / 2, want: 1},
		{act: "sin", x: 0, want: 0},
		{act: "abs", x: -4, want: 4},
		{act: "abs", x: 0.75, want: 0.75},
	}
	for _, tc := range tests {
		fn, err := GetActivation(tc.act)
		if err != nil {
			t.Fatalf("get builtin activation %s: %v", tc.act, err)
		}
		if got := fn(tc.x); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("%s(%f) got=%f want=%f", tc.act, tc.x, got, tc.want)
		}
	}
}

func TestListActivationsBuiltins(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	got := ListActivations()
	want := []string{"abs", "gaussian", "identity", "relu", "sigmoid", "sin", "tanh"}
	if len(got) != len(want) {
		t.Fatalf("activations got=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("activations got=%v want=%v", got, want)
		}
	}
}

func TestRegisterActivationExtendsNetwork(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	if err := RegisterActivation("step", func(x float64) float64 {
		if x > 0 {
			return 1
		}
		return 0
	}); err != nil {
		t.Fatalf("register step: %v", err)
	}
	names := ListActivations()
	if !sort.StringsAreSorted(names) || len(names) != 8 {
		t.Fatalf("unexpected activation list: %v", names)
	}

	genome := NewDenseGenome("step", 1, 1, rand.New(rand.NewSource(1)))
	genome.Neurons[1].Activation = "step"
	genome.Neurons[1].Bias = 0
	genome.Synapses[0].Weight = 1
	net, err := NewNetwork(genome)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	for _, tc := range []struct{ in, want float64 }{{in: 0.5, want: 1}, {in: -0.5, want: 0}} {
		out, err := net.Activate([]float64{tc.in})
		if err != nil {
			t.Fatalf("activate: %v", err)
		}
		if out[0] != tc.want {
			t.Fatalf("step(%f) got=%f want=%f", tc.in, out[0], tc.want)
		}
	}
}

func TestRegisterActivationErrors(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	tests := []struct {
		name    string
		fn      ActivationFunc
		wantErr error
	}{
		{name: "gaussian", fn: math.Abs, wantErr: ErrActivationExists},
		{name: "sin", fn: math.Sin, wantErr: ErrActivationExists},
		{name: "", fn: math.Abs},
		{name: "nil", fn: nil},
	}
	for _, tc := range tests {
		err := RegisterActivation(tc.name, tc.fn)
		if err == nil {
			t.Fatalf("register %q: expected error", tc.name)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Fatalf("register %q got=%v want=%v", tc.name, err, tc.wantErr)
		}
	}
}

func TestGetActivationNotFound(t *testing.T) {
	if _, err := GetActivation("softplus"); !errors.Is(err, ErrActivationNotFound) {
		t.Fatalf("get softplus got=%v want=%v", err, ErrActivationNotFound)
	}
}
