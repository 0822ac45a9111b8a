package grid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	layoutObstacle = "X"
	layoutGoal     = "1"
)

var ErrMalformedLayout = errors.New("malformed maze layout")

// Layout is a parsed maze grid, one string per cell, rows top to bottom.
type Layout [][]string

func (l Layout) Width() int {
	if len(l) == 0 {
		return 0
	}
	return len(l[0])
}

func (l Layout) Height() int {
	return len(l)
}

// ParseLayout reads comma-separated rows. Blank lines are skipped.
func ParseLayout(r io.Reader) (Layout, error) {
	var layout Layout
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cells := strings.Split(line, ",")
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		if len(layout) > 0 && len(cells) != layout.Width() {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrMalformedLayout, len(layout)+1, len(cells), layout.Width())
		}
		layout = append(layout, cells)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	if len(layout) == 0 {
		return nil, fmt.Errorf("%w: empty layout", ErrMalformedLayout)
	}
	return layout, nil
}

// LayoutPath is the conventional file for a maze difficulty level.
func LayoutPath(dir string, difficulty int) string {
	return filepath.Join(dir, fmt.Sprintf("dificuldade%d.txt", difficulty))
}

func LoadLayout(dir string, difficulty int) (Layout, error) {
	path := LayoutPath(dir, difficulty)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open maze layout: %w", err)
	}
	defer f.Close()

	layout, err := ParseLayout(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return layout, nil
}

// NewMaze builds a maze world from a layout. The layout must contain a goal;
// when several goal cells exist the last one in row order wins.
func NewMaze(layout Layout, difficulty int) (*Environment, error) {
	goal, found := Position{}, false
	var walls []Position
	for y, row := range layout {
		for x, cell := range row {
			switch cell {
			case layoutObstacle:
				walls = append(walls, Position{X: x, Y: y})
			case layoutGoal:
				goal, found = Position{X: x, Y: y}, true
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: no goal cell", ErrMalformedLayout)
	}

	env, err := New(layout.Width(), layout.Height(), goal)
	if err != nil {
		return nil, err
	}
	env.kind = KindMaze
	env.difficulty = difficulty
	for _, w := range walls {
		env.addObstacle(w)
	}
	return env, nil
}
