// Package novelty keeps a memory of final agent positions across generations
// and scores new positions by their mean distance to the nearest neighbours.
package novelty

import (
	"sort"

	"farol/internal/grid"
)

const (
	DefaultK         = 15
	DefaultThreshold = 10.0
	DefaultDecayRate = 0.05
	DefaultLimit     = 500

	// MaxThreshold caps the admission threshold after decay.
	MaxThreshold = 50.0
)

type Option func(*Archive)

func WithK(k int) Option                { return func(a *Archive) { a.k = k } }
func WithThreshold(t float64) Option    { return func(a *Archive) { a.threshold = t } }
func WithDecayRate(rate float64) Option { return func(a *Archive) { a.decayRate = rate } }
func WithLimit(limit int) Option        { return func(a *Archive) { a.limit = limit } }
func WithEntries(p ...grid.Position) Option {
	return func(a *Archive) { a.entries = append(a.entries, p...) }
}

// Archive is long-lived across generations and has a single writer.
type Archive struct {
	k         int
	threshold float64
	decayRate float64
	limit     int
	entries   []grid.Position

	maxScoreSeen float64
}

func NewArchive(opts ...Option) *Archive {
	a := &Archive{
		k:            DefaultK,
		threshold:    DefaultThreshold,
		decayRate:    DefaultDecayRate,
		limit:        DefaultLimit,
		maxScoreSeen: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.k < 1 {
		a.k = 1
	}
	if a.limit < 1 {
		a.limit = 1
	}
	if len(a.entries) > a.limit {
		a.entries = a.entries[len(a.entries)-a.limit:]
	}
	return a
}

// Score is the mean distance from pos to its k nearest points among the
// archive and the current population. Population entries equal to pos are skipped.
func (a *Archive) Score(pos grid.Position, population []grid.Position) float64 {
	dists := make([]float64, 0, len(a.entries)+len(population))
	for _, p := range a.entries {
		dists = append(dists, pos.DistanceTo(p))
	}
	for _, p := range population {
		if p == pos {
			continue
		}
		dists = append(dists, pos.DistanceTo(p))
	}
	if len(dists) == 0 {
		return 0
	}

	sort.Float64s(dists)
	n := a.k
	if n > len(dists) {
		n = len(dists)
	}
	total := 0.0
	for _, d := range dists[:n] {
		total += d
	}
	score := total / float64(n)
	if score > a.maxScoreSeen {
		a.maxScoreSeen = score
	}
	return score
}

// TryAdmit stores pos when score beats the threshold, evicting the oldest
// entry if the archive is full.
func (a *Archive) TryAdmit(pos grid.Position, score float64) bool {
	if score <= a.threshold {
		return false
	}
	if len(a.entries) >= a.limit {
		a.entries = a.entries[1:]
	}
	a.entries = append(a.entries, pos)
	return true
}

// Decay raises the threshold once per generation, capped at MaxThreshold.
func (a *Archive) Decay() {
	a.threshold *= 1 + a.decayRate
	if a.threshold > MaxThreshold {
		a.threshold = MaxThreshold
	}
}

func (a *Archive) Threshold() float64    { return a.threshold }
func (a *Archive) Len() int              { return len(a.entries) }
func (a *Archive) MaxScoreSeen() float64 { return a.maxScoreSeen }

func (a *Archive) Entries() []grid.Position {
	return append([]grid.Position(nil), a.entries...)
}
