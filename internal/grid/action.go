package grid

import (
	"fmt"
	"math"
)

// Action is a unit move on the grid. Valid actions are the four cardinals and Stay.
type Action struct {
	DX int `json:"dx" yaml:"dx"`
	DY int `json:"dy" yaml:"dy"`
}

var (
	North = Action{DX: 0, DY: -1}
	South = Action{DX: 0, DY: 1}
	West  = Action{DX: -1, DY: 0}
	East  = Action{DX: 1, DY: 0}
	Stay  = Action{}
)

// Cardinals lists the four headings in network output order.
var Cardinals = [4]Action{North, South, West, East}

func (a Action) IsZero() bool {
	return a.DX == 0 && a.DY == 0
}

func (a Action) Inverse() Action {
	return Action{DX: -a.DX, DY: -a.DY}
}

// Rotate turns the action by 90 degrees. Four rotations return the original heading.
func (a Action) Rotate() Action {
	return Action{DX: -a.DY, DY: a.DX}
}

// IsCardinal reports whether exactly one axis moves by one cell.
func (a Action) IsCardinal() bool {
	for _, c := range Cardinals {
		if a == c {
			return true
		}
	}
	return false
}

func (a Action) String() string {
	switch a {
	case North:
		return "N"
	case South:
		return "S"
	case West:
		return "W"
	case East:
		return "E"
	case Stay:
		return "-"
	}
	return fmt.Sprintf("(%d,%d)", a.DX, a.DY)
}

type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

func (p Position) Add(a Action) Position {
	return Position{X: p.X + a.DX, Y: p.Y + a.DY}
}

func (p Position) DistanceTo(other Position) float64 {
	dx := float64(p.X - other.X)
	dy := float64(p.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

func (p Position) neighbours() [4]Position {
	return [4]Position{
		{X: p.X + 1, Y: p.Y},
		{X: p.X - 1, Y: p.Y},
		{X: p.X, Y: p.Y + 1},
		{X: p.X, Y: p.Y - 1},
	}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}
