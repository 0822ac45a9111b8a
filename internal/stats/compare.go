// Package stats aggregates finished runs into per-policy comparison reports
// and writes them as CSV and JSON artifacts.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"farol/internal/model"
)

const (
	ReportCSV  = "compare.csv"
	ReportJSON = "compare.json"
)

// Summary describes one policy in one environment and difficulty. Every agent
// outcome counts as one sample.
type Summary struct {
	Environment    string  `json:"environment"`
	Difficulty     int     `json:"difficulty"`
	Policy         string  `json:"policy"`
	Samples        int     `json:"samples"`
	Successes      int     `json:"successes"`
	SuccessRate    float64 `json:"success_rate"`
	MeanPathLength float64 `json:"mean_path_length"`
	StdPathLength  float64 `json:"std_path_length"`
	MeanCollisions float64 `json:"mean_collisions"`
}

type groupKey struct {
	environment string
	difficulty  int
	policy      string
}

// Aggregate groups outcomes by environment, difficulty and policy, sorted in
// that order.
func Aggregate(runs []model.RunRecord) []Summary {
	paths := make(map[groupKey][]float64)
	collisions := make(map[groupKey]float64)
	successes := make(map[groupKey]int)
	for _, run := range runs {
		for _, outcome := range run.Outcomes {
			key := groupKey{environment: run.Environment, difficulty: run.Difficulty, policy: outcome.Policy}
			paths[key] = append(paths[key], float64(outcome.PathLength))
			collisions[key] += float64(outcome.Collisions)
			if outcome.AtGoal {
				successes[key]++
			}
		}
	}

	out := make([]Summary, 0, len(paths))
	for key, samples := range paths {
		n := float64(len(samples))
		mean, std := meanStd(samples)
		out = append(out, Summary{
			Environment:    key.environment,
			Difficulty:     key.difficulty,
			Policy:         key.policy,
			Samples:        len(samples),
			Successes:      successes[key],
			SuccessRate:    float64(successes[key]) / n,
			MeanPathLength: mean,
			StdPathLength:  std,
			MeanCollisions: collisions[key] / n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Environment != out[j].Environment {
			return out[i].Environment < out[j].Environment
		}
		if out[i].Difficulty != out[j].Difficulty {
			return out[i].Difficulty < out[j].Difficulty
		}
		return out[i].Policy < out[j].Policy
	})
	return out
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(variance / float64(len(values)))
}

func WriteCSV(w io.Writer, rows []Summary) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{
		"environment", "difficulty", "policy", "samples", "successes",
		"success_rate", "mean_path_length", "std_path_length", "mean_collisions",
	}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.Environment,
			strconv.Itoa(row.Difficulty),
			row.Policy,
			strconv.Itoa(row.Samples),
			strconv.Itoa(row.Successes),
			formatFloat(row.SuccessRate),
			formatFloat(row.MeanPathLength),
			formatFloat(row.StdPathLength),
			formatFloat(row.MeanCollisions),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func WriteJSON(w io.Writer, rows []Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// WriteReport writes compare.csv and compare.json under dir and returns dir.
func WriteReport(dir string, rows []Summary) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("report directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(dir, ReportCSV), func(w io.Writer) error { return WriteCSV(w, rows) }); err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(dir, ReportJSON), func(w io.Writer) error { return WriteJSON(w, rows) }); err != nil {
		return "", err
	}
	return dir, nil
}

// ReadReport loads a JSON report written by WriteReport.
func ReadReport(dir string) ([]Summary, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, ReportJSON))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var rows []Summary
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, err
	}
	return rows, true, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
