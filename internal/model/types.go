package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Genome is a trained feed-forward network. SensorIDs name the input neurons
// in feature order and ActuatorIDs name the output neurons in action order.
type Genome struct {
	VersionedRecord
	ID          string    `json:"id"`
	Neurons     []Neuron  `json:"neurons"`
	Synapses    []Synapse `json:"synapses"`
	SensorIDs   []string  `json:"sensor_ids"`
	ActuatorIDs []string  `json:"actuator_ids"`
}

type Neuron struct {
	ID         string  `json:"id"`
	Activation string  `json:"activation"`
	Bias       float64 `json:"bias"`
}

type Synapse struct {
	ID      string  `json:"id"`
	From    string  `json:"from"`
	To      string  `json:"to"`
	Weight  float64 `json:"weight"`
	Enabled bool    `json:"enabled"`
}

// QTable is the exported state of a tabular Q-learning policy.
type QTable struct {
	VersionedRecord
	ID      string   `json:"id"`
	Alpha   float64  `json:"alpha"`
	Gamma   float64  `json:"gamma"`
	Epsilon float64  `json:"epsilon"`
	Entries []QEntry `json:"entries"`
}

// QEntry is the value of taking action (DX, DY) in cell (X, Y).
type QEntry struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	DX    int     `json:"dx"`
	DY    int     `json:"dy"`
	Value float64 `json:"value"`
}

// RunRecord summarises one finished simulation run.
type RunRecord struct {
	VersionedRecord
	ID           string         `json:"id"`
	Kind         string         `json:"kind"`
	Scenario     string         `json:"scenario"`
	Environment  string         `json:"environment"`
	Difficulty   int            `json:"difficulty"`
	CreatedAtUTC string         `json:"created_at_utc"`
	Steps        int            `json:"steps"`
	Reason       string         `json:"reason"`
	Outcomes     []AgentOutcome `json:"outcomes"`
}

type AgentOutcome struct {
	AgentID    string  `json:"agent_id"`
	Policy     string  `json:"policy"`
	Collisions int     `json:"collisions"`
	FinalX     int     `json:"final_x"`
	FinalY     int     `json:"final_y"`
	AtGoal     bool    `json:"at_goal"`
	Distance   float64 `json:"distance"`
	PathLength int     `json:"path_length"`
}
