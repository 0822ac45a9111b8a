package farol

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"farol/internal/grid"
	"farol/internal/policy"
	"farol/internal/scenario"
	"farol/internal/stats"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Options{StoreKind: "memory", MazeDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func openScenario(agents ...scenario.AgentSpec) *scenario.Scenario {
	return &scenario.Scenario{
		Name: "open",
		Environment: scenario.EnvironmentSpec{
			Type:   grid.KindFarol,
			Width:  6,
			Height: 6,
			Seed:   7,
		},
		Agents:   agents,
		MaxSteps: 30,
	}
}

func agentSpec(id, kind, model string) scenario.AgentSpec {
	return scenario.AgentSpec{
		ID:      id,
		Policy:  scenario.PolicySpec{Type: kind, Model: model},
		Sensors: unitSensorSpecs(),
		Start:   []int{1, 1},
	}
}

func TestNewRejectsUnknownStore(t *testing.T) {
	if _, err := New(Options{StoreKind: "redis"}); err == nil {
		t.Fatal("expected unknown store error")
	}
}

func TestModelID(t *testing.T) {
	tests := []struct {
		policy     string
		env        string
		difficulty int
		want       string
	}{
		{policy: "qlearning", env: grid.KindFarol, difficulty: 3, want: "farol-qlearning"},
		{policy: "neural", env: grid.KindFarol, difficulty: 1, want: "farol-neural"},
		{policy: "qlearning", env: grid.KindMaze, difficulty: 2, want: "maze2-qlearning"},
	}
	for _, tc := range tests {
		if got := ModelID(tc.policy, tc.env, tc.difficulty); got != tc.want {
			t.Fatalf("ModelID(%s,%s,%d) got=%s want=%s", tc.policy, tc.env, tc.difficulty, got, tc.want)
		}
	}
}

func TestRunScenarioSavesRun(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	summary, err := client.RunScenario(ctx, RunRequest{
		Scenario: openScenario(agentSpec("greedy", policy.KindFixed, "")),
		Save:     true,
	})
	if err != nil {
		t.Fatalf("run scenario: %v", err)
	}
	if summary.Reason != "goal" || len(summary.Outcomes) != 1 || !summary.Outcomes[0].AtGoal {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.RunID == "" {
		t.Fatal("expected run id")
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != summary.RunID || runs[0].Kind != RunKindScenario {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	record, ok, err := client.Run(ctx, summary.RunID)
	if err != nil || !ok {
		t.Fatalf("get run ok=%v err=%v", ok, err)
	}
	if record.Environment != grid.KindFarol || record.Outcomes[0].PathLength < 2 {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestRunScenarioFromFileReportsMissingModels(t *testing.T) {
	client := newTestClient(t)
	path := filepath.Join(t.TempDir(), "missing.yaml")
	content := `
environment:
  type: farol
  width: 8
  height: 6
  seed: 3
max_steps: 5
agents:
  - id: learner
    policy:
      type: qlearning
      model: nowhere
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	summary, err := client.RunScenario(context.Background(), RunRequest{ScenarioPath: path})
	if err != nil {
		t.Fatalf("run scenario: %v", err)
	}
	if summary.Scenario != "missing" {
		t.Fatalf("scenario name got=%s want=missing", summary.Scenario)
	}
	if len(summary.Issues) != 1 || summary.Issues[0].Model != "nowhere" {
		t.Fatalf("unexpected issues: %+v", summary.Issues)
	}
	if summary.Outcomes[0].Policy != policy.KindRandom {
		t.Fatalf("fallback policy got=%s want=%s", summary.Outcomes[0].Policy, policy.KindRandom)
	}
	runs, err := client.Runs(context.Background(), RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("unsaved run should not be listed, got %d", len(runs))
	}
}

func TestRunScenarioRequiresSource(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.RunScenario(context.Background(), RunRequest{}); err == nil {
		t.Fatal("expected missing scenario error")
	}
}

func TestTrainAndCompare(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	env := EnvironmentRequest{Type: grid.KindFarol, Width: 6, Height: 6, Difficulty: 1}

	ql, err := client.TrainQLearning(ctx, TrainQLearningRequest{Environment: env, Episodes: 50, Seed: 5})
	if err != nil {
		t.Fatalf("train qlearning: %v", err)
	}
	if ql.ModelID != "farol-qlearning" || ql.Episodes != 50 || ql.States == 0 {
		t.Fatalf("unexpected qlearning summary: %+v", ql)
	}

	neural, err := client.TrainNeural(ctx, TrainNeuralRequest{
		Environment: env,
		Population:  4,
		Generations: 2,
		EliteCount:  1,
		MaxSteps:    10,
		Seed:        5,
	})
	if err != nil {
		t.Fatalf("train neural: %v", err)
	}
	if neural.ModelID != "farol-neural" || len(neural.BestByGeneration) != 2 {
		t.Fatalf("unexpected neural summary: %+v", neural)
	}

	summary, err := client.Compare(ctx, CompareRequest{
		Environments: []CompareEnvironment{{Type: grid.KindFarol, Difficulties: []int{1}}},
		Episodes:     2,
		MaxSteps:     20,
		Seed:         9,
	})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(summary.Skipped) != 0 {
		t.Fatalf("trained models should not be skipped: %+v", summary.Skipped)
	}
	if summary.Runs != 2 || len(summary.Rows) != 3 {
		t.Fatalf("runs=%d rows=%d want 2/3", summary.Runs, len(summary.Rows))
	}
	for _, row := range summary.Rows {
		if row.Samples != 2 {
			t.Fatalf("row %s samples got=%d want=2", row.Policy, row.Samples)
		}
	}
}

func TestTrainQLearningHonoursZeroHyperparameters(t *testing.T) {
	zero := 0.0
	tests := []struct {
		name      string
		req       TrainQLearningRequest
		wantAlpha float64
		wantGamma float64
	}{
		{name: "defaults", wantAlpha: 0.1, wantGamma: 0.9},
		{name: "myopic", req: TrainQLearningRequest{Gamma: &zero, Epsilon: &zero}, wantAlpha: 0.1, wantGamma: 0},
	}
	for _, tc := range tests {
		client := newTestClient(t)
		ctx := context.Background()
		req := tc.req
		req.Environment = EnvironmentRequest{Type: grid.KindFarol, Width: 6, Height: 6, Difficulty: 1}
		req.ModelID = "ql-" + tc.name
		req.Episodes = 5
		req.Seed = 3

		summary, err := client.TrainQLearning(ctx, req)
		if err != nil {
			t.Fatalf("%s: train: %v", tc.name, err)
		}
		if summary.FinalEpsilon < 0 || summary.FinalEpsilon > 1 {
			t.Fatalf("%s: final epsilon got=%f", tc.name, summary.FinalEpsilon)
		}
		table, ok, err := client.store.GetQTable(ctx, req.ModelID)
		if err != nil || !ok {
			t.Fatalf("%s: get q-table ok=%t err=%v", tc.name, ok, err)
		}
		if table.Alpha != tc.wantAlpha || table.Gamma != tc.wantGamma {
			t.Fatalf("%s: alpha/gamma got=%f/%f want=%f/%f", tc.name, table.Alpha, table.Gamma, tc.wantAlpha, tc.wantGamma)
		}
	}
}

func TestCompareSkipsMissingModelsAndWritesReport(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "reports")

	summary, err := client.Compare(ctx, CompareRequest{
		Environments: []CompareEnvironment{{Type: grid.KindFarol, Difficulties: []int{1, 2}}},
		Episodes:     2,
		MaxSteps:     15,
		Seed:         1,
		OutDir:       out,
		SaveRuns:     true,
	})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(summary.Skipped) != 4 {
		t.Fatalf("skipped got=%d want=4", len(summary.Skipped))
	}
	if summary.Runs != 4 || len(summary.Rows) != 2 {
		t.Fatalf("runs=%d rows=%d want 4/2", summary.Runs, len(summary.Rows))
	}
	if summary.Rows[0].Policy != policy.KindFixed || summary.Rows[1].Difficulty != 2 {
		t.Fatalf("unexpected rows: %+v", summary.Rows)
	}

	rows, ok, err := stats.ReadReport(summary.ReportDir)
	if err != nil || !ok || len(rows) != 2 {
		t.Fatalf("report ok=%v err=%v rows=%d", ok, err, len(rows))
	}
	runs, err := client.Runs(ctx, RunsRequest{Kind: RunKindCompare, Limit: 10})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 4 {
		t.Fatalf("compare runs got=%d want=4", len(runs))
	}
}

func TestCompareRejectsUnknownPolicy(t *testing.T) {
	client := newTestClient(t)
	_, err := client.Compare(context.Background(), CompareRequest{
		Environments: []CompareEnvironment{{Type: grid.KindFarol, Difficulties: []int{1}}},
		Policies:     []string{"oracle"},
	})
	if err == nil {
		t.Fatal("expected unknown policy error")
	}
}
