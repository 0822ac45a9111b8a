// Package viz renders simulation frames for people: ASCII to a writer or JSON
// over websockets.
package viz

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"farol/internal/grid"
)

const (
	cellEmpty    = '.'
	cellObstacle = '#'
	cellGoal     = 'F'
)

// TextSink writes one ASCII frame per tick. Agents are drawn by their index
// in engine order, modulo 10.
type TextSink struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w}
}

func (s *TextSink) Publish(snapshot grid.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	_, err := fmt.Fprintf(s.w, "step %d\n%s\n", snapshot.Step, Render(snapshot))
	return err
}

func (s *TextSink) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close makes Open report false so a running engine stops after this tick.
func (s *TextSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Render draws the grid row by row. Agents are drawn over the goal.
func Render(snapshot grid.Snapshot) string {
	if snapshot.Width <= 0 || snapshot.Height <= 0 {
		return ""
	}
	rows := make([][]byte, snapshot.Height)
	for y := range rows {
		rows[y] = []byte(strings.Repeat(string(cellEmpty), snapshot.Width))
	}
	set := func(p grid.Position, c byte) {
		if p.X >= 0 && p.X < snapshot.Width && p.Y >= 0 && p.Y < snapshot.Height {
			rows[p.Y][p.X] = c
		}
	}
	for _, o := range snapshot.Obstacles {
		set(o, cellObstacle)
	}
	set(snapshot.Goal, cellGoal)
	for i, a := range snapshot.Agents {
		set(a, byte('0'+i%10))
	}

	var b strings.Builder
	for y, row := range rows {
		if y > 0 {
			b.WriteByte('\n')
		}
		b.Write(row)
	}
	return b.String()
}
