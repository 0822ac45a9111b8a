package storage

import (
	"context"
	"sync"

	"farol/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	qtables     map[string]model.QTable
	genomes     map[string]model.Genome
	runs        map[string]model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.qtables = make(map[string]model.QTable)
	s.genomes = make(map[string]model.Genome)
	s.runs = make(map[string]model.RunRecord)
	return nil
}

func (s *MemoryStore) SaveQTable(_ context.Context, table model.QTable) error {
	if table.ID == "" {
		return ErrMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	table.Entries = append([]model.QEntry(nil), table.Entries...)
	s.qtables[table.ID] = table
	return nil
}

func (s *MemoryStore) GetQTable(_ context.Context, id string) (model.QTable, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, ok := s.qtables[id]
	if ok {
		table.Entries = append([]model.QEntry(nil), table.Entries...)
	}
	return table, ok, nil
}

func (s *MemoryStore) SaveGenome(_ context.Context, genome model.Genome) error {
	if genome.ID == "" {
		return ErrMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.genomes[genome.ID] = genome
	return nil
}

func (s *MemoryStore) GetGenome(_ context.Context, id string) (model.Genome, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	genome, ok := s.genomes[id]
	return genome, ok, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	if run.ID == "" {
		return ErrMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	run.Outcomes = append([]model.AgentOutcome(nil), run.Outcomes...)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sortRuns(out)
	return out, nil
}
