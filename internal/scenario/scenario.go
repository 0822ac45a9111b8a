// Package scenario loads simulation scenario files and builds ready-to-run
// engines from them.
package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"farol/internal/grid"
	"farol/internal/policy"
)

const (
	DefaultMaxSteps   = 100
	DefaultDifficulty = 1
	DefaultMazeDir    = "mazes"
)

var ErrInvalidScenario = errors.New("invalid scenario")

type Scenario struct {
	Name        string          `yaml:"name" json:"name"`
	Environment EnvironmentSpec `yaml:"environment" json:"environment"`
	Agents      []AgentSpec     `yaml:"agents" json:"agents"`
	MaxSteps    int             `yaml:"max_steps" json:"max_steps"`
}

type EnvironmentSpec struct {
	Type       string `yaml:"type" json:"type"`
	Width      int    `yaml:"width" json:"width"`
	Height     int    `yaml:"height" json:"height"`
	Difficulty int    `yaml:"difficulty" json:"difficulty"`
	MazeDir    string `yaml:"maze_dir" json:"maze_dir"`
	Seed       int64  `yaml:"seed" json:"seed"`
}

type AgentSpec struct {
	ID      string       `yaml:"id" json:"id"`
	Policy  PolicySpec   `yaml:"policy" json:"policy"`
	Sensors []SensorSpec `yaml:"sensors" json:"sensors"`
	Start   []int        `yaml:"start" json:"start"`
}

// PolicySpec names a policy kind. Model is the stored Q-table or genome ID
// for learned kinds.
type PolicySpec struct {
	Type    string   `yaml:"type" json:"type"`
	Model   string   `yaml:"model" json:"model"`
	Alpha   *float64 `yaml:"alpha" json:"alpha"`
	Gamma   *float64 `yaml:"gamma" json:"gamma"`
	Epsilon *float64 `yaml:"epsilon" json:"epsilon"`
}

type SensorSpec struct {
	Direction []int `yaml:"direction" json:"direction"`
	Depth     int   `yaml:"depth" json:"depth"`
}

// Load reads a scenario file, choosing YAML or JSON by extension.
func Load(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	sc, err := Parse(data, format)
	if err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sc, nil
}

// Parse decodes data as "yaml", "yml" or "json", fills defaults and validates.
func Parse(data []byte, format string) (Scenario, error) {
	var sc Scenario
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &sc); err != nil {
			return Scenario{}, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
		}
	case "json":
		if err := json.Unmarshal(data, &sc); err != nil {
			return Scenario{}, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
		}
	default:
		return Scenario{}, fmt.Errorf("%w: unsupported format %q", ErrInvalidScenario, format)
	}
	sc.applyDefaults()
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

func (sc *Scenario) applyDefaults() {
	if sc.Environment.Type == "" {
		sc.Environment.Type = grid.KindFarol
	}
	if sc.Environment.Difficulty == 0 {
		sc.Environment.Difficulty = DefaultDifficulty
	}
	if sc.MaxSteps == 0 {
		sc.MaxSteps = DefaultMaxSteps
	}
	for i := range sc.Agents {
		agent := &sc.Agents[i]
		if agent.Policy.Type == "" {
			agent.Policy.Type = policy.KindRandom
		}
		if len(agent.Start) == 0 {
			agent.Start = []int{1, 1}
		}
		for j := range agent.Sensors {
			if agent.Sensors[j].Depth == 0 {
				agent.Sensors[j].Depth = 1
			}
		}
	}
}

// Validate checks structure only. Unknown policy types are tolerated and
// fall back to random at build time.
func (sc Scenario) Validate() error {
	if sc.MaxSteps < 0 {
		return fmt.Errorf("%w: max_steps must be >= 0", ErrInvalidScenario)
	}
	if sc.Environment.Width < 0 || sc.Environment.Height < 0 {
		return fmt.Errorf("%w: negative environment size", ErrInvalidScenario)
	}
	seen := make(map[string]struct{}, len(sc.Agents))
	for i, agent := range sc.Agents {
		if agent.ID == "" {
			return fmt.Errorf("%w: agent %d has no id", ErrInvalidScenario, i)
		}
		if _, dup := seen[agent.ID]; dup {
			return fmt.Errorf("%w: duplicate agent id %s", ErrInvalidScenario, agent.ID)
		}
		seen[agent.ID] = struct{}{}
		if len(agent.Start) != 2 {
			return fmt.Errorf("%w: agent %s start must be [x, y]", ErrInvalidScenario, agent.ID)
		}
		if _, err := agent.sensors(); err != nil {
			return fmt.Errorf("%w: agent %s: %v", ErrInvalidScenario, agent.ID, err)
		}
	}
	return nil
}

func (a AgentSpec) start() grid.Position {
	return grid.Position{X: a.Start[0], Y: a.Start[1]}
}

func (a AgentSpec) sensors() ([]grid.Sensor, error) {
	out := make([]grid.Sensor, 0, len(a.Sensors))
	for _, spec := range a.Sensors {
		if len(spec.Direction) != 2 {
			return nil, fmt.Errorf("sensor direction must be [dx, dy], got %v", spec.Direction)
		}
		sensor, err := grid.NewSensor(grid.Action{DX: spec.Direction[0], DY: spec.Direction[1]}, spec.Depth)
		if err != nil {
			return nil, err
		}
		out = append(out, sensor)
	}
	return out, nil
}
