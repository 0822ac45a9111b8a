package grid

import "fmt"

// ObstacleReward is the probe reward reported when a sensor line crosses an obstacle.
const ObstacleReward = -999.0

// Sensor probes Depth cells along Direction starting one step from the agent.
type Sensor struct {
	Direction Action
	Depth     int
}

func NewSensor(direction Action, depth int) (Sensor, error) {
	if depth < 1 {
		return Sensor{}, fmt.Errorf("sensor depth must be >= 1, got %d", depth)
	}
	if !direction.IsCardinal() {
		return Sensor{}, fmt.Errorf("sensor direction must be cardinal, got %s", direction)
	}
	return Sensor{Direction: direction, Depth: depth}, nil
}

// UnitSensors returns one depth-1 sensor per cardinal heading.
func UnitSensors() []Sensor {
	out := make([]Sensor, 0, len(Cardinals))
	for _, dir := range Cardinals {
		out = append(out, Sensor{Direction: dir, Depth: 1})
	}
	return out
}

// probeCells does not clamp to the grid; off-grid probes are never obstacles.
func (s Sensor) probeCells(from Position) []Position {
	cells := make([]Position, 0, s.Depth)
	for step := 1; step <= s.Depth; step++ {
		cells = append(cells, Position{
			X: from.X + s.Direction.DX*step,
			Y: from.Y + s.Direction.DY*step,
		})
	}
	return cells
}

type SensorReading struct {
	Base   Action
	Reward float64
}

// Observation is rebuilt every tick. A nil Position means the agent is not registered.
type Observation struct {
	Position *Position
	Readings []SensorReading
}

// Body is the view of an agent the environment needs to resolve moves and probes.
type Body interface {
	ID() string
	Sensors() []Sensor
	RecordCollision()
}
