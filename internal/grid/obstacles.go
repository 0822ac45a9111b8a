package grid

import (
	"fmt"
	"math"
	"math/rand"
)

// ObstacleProbability is the per-cell placement chance for a difficulty level.
func ObstacleProbability(difficulty int) float64 {
	if difficulty <= 0 {
		return 0
	}
	return math.Min(0.05*float64(difficulty), 0.9)
}

// PlaceRandomObstacles scans rows then columns and places an obstacle on every
// cell that wins the probability draw and is safe. It returns the number placed.
func (e *Environment) PlaceRandomObstacles(rng *rand.Rand, difficulty int) int {
	prob := ObstacleProbability(difficulty)
	placed := 0
	for y := 0; y < e.height; y++ {
		for x := 0; x < e.width; x++ {
			pos := Position{X: x, Y: y}
			if rng.Float64() >= prob || !e.safeForObstacle(pos) {
				continue
			}
			if e.IsObstacle(pos) {
				continue
			}
			e.addObstacle(pos)
			placed++
		}
	}
	return placed
}

// PlaceObstacle adds a fixed obstacle without the agent/goal safety check.
func (e *Environment) PlaceObstacle(pos Position) error {
	if !e.InBounds(pos) {
		return fmt.Errorf("obstacle %s: %w", pos, ErrOutOfBounds)
	}
	if e.IsObstacle(pos) {
		return fmt.Errorf("obstacle %s: %w", pos, ErrObstacleTaken)
	}
	e.addObstacle(pos)
	return nil
}

func (e *Environment) addObstacle(pos Position) {
	e.obstacles = append(e.obstacles, pos)
	e.obstacleSet[pos] = struct{}{}
}

// safeForObstacle rejects the goal, occupied cells and their 4-neighbours.
func (e *Environment) safeForObstacle(pos Position) bool {
	if blocksCell(pos, e.goal) {
		return false
	}
	for _, agentPos := range e.positions {
		if blocksCell(pos, agentPos) {
			return false
		}
	}
	return true
}

func blocksCell(pos, protected Position) bool {
	if pos == protected {
		return true
	}
	for _, n := range protected.neighbours() {
		if pos == n {
			return true
		}
	}
	return false
}
