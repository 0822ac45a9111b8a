// Package storage persists trained policies and run summaries.
package storage

import (
	"context"
	"errors"

	"farol/internal/model"
)

var (
	ErrNotInitialized = errors.New("store is not initialized")
	ErrMissingID      = errors.New("record id is required")

	ErrBackendUnavailable = errors.New("store backend unavailable")
)

// Store persists Q-tables, genomes and run records. Getters report a missing
// record as (zero, false, nil).
type Store interface {
	Init(ctx context.Context) error
	SaveQTable(ctx context.Context, table model.QTable) error
	GetQTable(ctx context.Context, id string) (model.QTable, bool, error)
	SaveGenome(ctx context.Context, genome model.Genome) error
	GetGenome(ctx context.Context, id string) (model.Genome, bool, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
}
