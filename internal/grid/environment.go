package grid

import (
	"errors"
	"fmt"
	"math/rand"
)

const (
	KindFarol = "farol"
	KindMaze  = "maze"
)

// maxObstacleRetries covers every rotation of the original heading.
const maxObstacleRetries = 4

// unknownDistance is reported for agents the environment does not track.
const unknownDistance = 1000.0

var (
	ErrUnknownKind   = errors.New("unknown environment type")
	ErrOutOfBounds   = errors.New("position out of bounds")
	ErrObstacleTaken = errors.New("obstacle already placed")
)

// MoveResult describes what Apply did with an action.
type MoveResult struct {
	From      Position
	To        Position
	Action    Action
	Committed bool
	Rotations int
}

// Snapshot is the read-only frame handed to visualization sinks.
type Snapshot struct {
	Step      int        `json:"step"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Goal      Position   `json:"goal"`
	Agents    []Position `json:"agents"`
	Obstacles []Position `json:"obstacles"`
}

// Environment owns grid geometry, the goal, obstacles and every per-agent
// position, path and last committed action. It is not safe for concurrent use.
type Environment struct {
	kind       string
	width      int
	height     int
	difficulty int
	goal       Position

	obstacles   []Position
	obstacleSet map[Position]struct{}

	positions   map[string]Position
	paths       map[string][]Position
	lastActions map[string]Action
	step        int
}

func New(width, height int, goal Position) (*Environment, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("grid dimensions must be positive, got %dx%d", width, height)
	}
	env := &Environment{
		width:       width,
		height:      height,
		goal:        goal,
		obstacleSet: make(map[Position]struct{}),
	}
	if !env.InBounds(goal) {
		return nil, fmt.Errorf("goal %s: %w", goal, ErrOutOfBounds)
	}
	env.Reset()
	return env, nil
}

// NewFarol builds the open-field world with the goal two cells in from the far corner.
// Obstacles are added later by Populate, once agents are registered.
func NewFarol(width, height, difficulty int) (*Environment, error) {
	if width < 2 || height < 2 {
		return nil, fmt.Errorf("farol grid must be at least 2x2, got %dx%d", width, height)
	}
	env, err := New(width, height, Position{X: width - 2, Y: height - 2})
	if err != nil {
		return nil, err
	}
	env.kind = KindFarol
	env.difficulty = difficulty
	return env, nil
}

func (e *Environment) Kind() string    { return e.kind }
func (e *Environment) Width() int      { return e.width }
func (e *Environment) Height() int     { return e.height }
func (e *Environment) Difficulty() int { return e.difficulty }
func (e *Environment) Goal() Position  { return e.goal }
func (e *Environment) Step() int       { return e.step }

// Advance increments the step counter once per tick.
func (e *Environment) Advance() {
	e.step++
}

// Reset clears per-agent state and the step counter. Goal and obstacles are kept.
func (e *Environment) Reset() {
	e.positions = make(map[string]Position)
	e.paths = make(map[string][]Position)
	e.lastActions = make(map[string]Action)
	e.step = 0
}

func (e *Environment) InBounds(p Position) bool {
	return p.X >= 0 && p.X < e.width && p.Y >= 0 && p.Y < e.height
}

func (e *Environment) clamp(p Position) Position {
	return Position{X: clampInt(p.X, 0, e.width-1), Y: clampInt(p.Y, 0, e.height-1)}
}

func (e *Environment) IsObstacle(p Position) bool {
	_, ok := e.obstacleSet[p]
	return ok
}

// Obstacles returns obstacle cells in placement order.
func (e *Environment) Obstacles() []Position {
	return append([]Position(nil), e.obstacles...)
}

func (e *Environment) AddAgent(body Body, start Position) error {
	if !e.InBounds(start) {
		return fmt.Errorf("agent %s start %s: %w", body.ID(), start, ErrOutOfBounds)
	}
	e.positions[body.ID()] = start
	e.paths[body.ID()] = []Position{start}
	delete(e.lastActions, body.ID())
	return nil
}

func (e *Environment) Position(id string) (Position, bool) {
	p, ok := e.positions[id]
	return p, ok
}

func (e *Environment) Path(id string) []Position {
	return append([]Position(nil), e.paths[id]...)
}

func (e *Environment) LastAction(id string) (Action, bool) {
	a, ok := e.lastActions[id]
	return a, ok
}

func (e *Environment) AtGoal(id string) bool {
	p, ok := e.positions[id]
	return ok && p == e.goal
}

func (e *Environment) DistanceToGoal(id string) float64 {
	p, ok := e.positions[id]
	if !ok {
		return unknownDistance
	}
	return p.DistanceTo(e.goal)
}

// Apply resolves one action for body. Inverse headings and boundary hits turn
// the action 90 degrees; obstacle hits retry up to four turns and stall
// silently when every heading is blocked. Each turn counts as a collision.
func (e *Environment) Apply(action Action, body Body) MoveResult {
	id := body.ID()
	from, ok := e.positions[id]
	result := MoveResult{From: from, To: from, Action: action}
	if !ok || action.IsZero() {
		return result
	}

	turn := func() {
		action = action.Rotate()
		body.RecordCollision()
		result.Rotations++
	}

	if last, ok := e.lastActions[id]; ok && action == last.Inverse() {
		turn()
	}
	if !e.InBounds(from.Add(action)) {
		turn()
	}
	candidate := e.clamp(from.Add(action))

	if e.IsObstacle(candidate) {
		for attempt := 0; attempt < maxObstacleRetries; attempt++ {
			turn()
			candidate = e.clamp(from.Add(action))
			if !e.IsObstacle(candidate) {
				return e.commit(id, candidate, action, result)
			}
		}
		result.Action = action
		return result
	}
	return e.commit(id, candidate, action, result)
}

func (e *Environment) commit(id string, to Position, action Action, result MoveResult) MoveResult {
	e.positions[id] = to
	e.paths[id] = append(e.paths[id], to)
	e.lastActions[id] = action
	result.To = to
	result.Action = action
	result.Committed = true
	return result
}

// Observe builds the sensor observation for body from its current cell.
func (e *Environment) Observe(body Body) Observation {
	pos, ok := e.positions[body.ID()]
	if !ok {
		return Observation{}
	}
	sensors := body.Sensors()
	readings := make([]SensorReading, 0, len(sensors))
	for _, sensor := range sensors {
		cells := sensor.probeCells(pos)
		if len(cells) == 0 {
			continue
		}
		reward := ObstacleReward
		if !e.anyObstacle(cells) {
			reward = -cells[len(cells)-1].DistanceTo(e.goal)
		}
		readings = append(readings, SensorReading{Base: sensor.Direction, Reward: reward})
	}
	current := pos
	return Observation{Position: &current, Readings: readings}
}

func (e *Environment) anyObstacle(cells []Position) bool {
	for _, c := range cells {
		if e.IsObstacle(c) {
			return true
		}
	}
	return false
}

// FeatureCount is the length of the vector returned by Features.
const FeatureCount = 12

// Features returns the neural input vector for body: wall proximity N,S,W,E,
// goal direction N,S,W,E and sensed obstacles N,S,W,E.
func (e *Environment) Features(body Body) []float64 {
	out := make([]float64, FeatureCount)
	pos, ok := e.positions[body.ID()]
	if !ok {
		return out
	}
	w, h := float64(e.width), float64(e.height)
	x, y := float64(pos.X), float64(pos.Y)

	out[0] = 1 - y/h
	out[1] = 1 - (h-1-y)/h
	out[2] = 1 - x/w
	out[3] = 1 - (w-1-x)/w

	out[4] = boolFloat(e.goal.Y < pos.Y)
	out[5] = boolFloat(e.goal.Y > pos.Y)
	out[6] = boolFloat(e.goal.X < pos.X)
	out[7] = boolFloat(e.goal.X > pos.X)

	for _, sensor := range body.Sensors() {
		for _, cell := range sensor.probeCells(pos) {
			if !e.IsObstacle(cell) {
				continue
			}
			if cell.Y < pos.Y {
				out[8] = 1
			} else if cell.Y > pos.Y {
				out[9] = 1
			}
			if cell.X < pos.X {
				out[10] = 1
			} else if cell.X > pos.X {
				out[11] = 1
			}
		}
	}
	return out
}

// Snapshot lists agent positions in the given order, skipping unregistered ids.
func (e *Environment) Snapshot(order []string) Snapshot {
	agents := make([]Position, 0, len(order))
	for _, id := range order {
		if p, ok := e.positions[id]; ok {
			agents = append(agents, p)
		}
	}
	return Snapshot{
		Step:      e.step,
		Width:     e.width,
		Height:    e.height,
		Goal:      e.goal,
		Agents:    agents,
		Obstacles: e.Obstacles(),
	}
}

// Params configures NewFromKind.
type Params struct {
	Width      int
	Height     int
	Difficulty int
	MazeDir    string
}

// NewFromKind builds an environment from a scenario type tag.
func NewFromKind(kind string, params Params) (*Environment, error) {
	switch kind {
	case KindFarol:
		width, height := params.Width, params.Height
		if width == 0 {
			width = 15
		}
		if height == 0 {
			height = 10
		}
		return NewFarol(width, height, params.Difficulty)
	case KindMaze:
		layout, err := LoadLayout(params.MazeDir, params.Difficulty)
		if err != nil {
			return nil, err
		}
		return NewMaze(layout, params.Difficulty)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Populate adds the kind's generated obstacles. Maze obstacles come from the
// layout, so only the farol world draws random ones.
func (e *Environment) Populate(rng *rand.Rand) int {
	if e.kind != KindFarol {
		return 0
	}
	return e.PlaceRandomObstacles(rng, e.difficulty)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
