package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"farol/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type payloadRow struct {
	ID            string `gorm:"primaryKey;type:text"`
	SchemaVersion int    `gorm:"not null"`
	CodecVersion  int    `gorm:"not null"`
	Payload       []byte `gorm:"type:bytea;not null"`
}

type qtableRow struct{ payloadRow }

func (qtableRow) TableName() string { return "farol_qtables" }

type genomeRow struct{ payloadRow }

func (genomeRow) TableName() string { return "farol_genomes" }

type runRow struct {
	payloadRow
	CreatedAtUTC string `gorm:"column:created_at_utc;type:text;not null;index"`
}

func (runRow) TableName() string { return "farol_runs" }

// PostgresStore keeps records as versioned JSON payloads in postgres.
type PostgresStore struct {
	dsn string

	mu sync.RWMutex
	db *gorm.DB
}

func NewPostgresStore(dsn string) *PostgresStore {
	return &PostgresStore{dsn: dsn}
}

func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

func (s *PostgresStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dsn == "" {
		return errors.New("postgres dsn is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := OpenPostgres(s.dsn)
	if err != nil {
		return err
	}
	if err := db.WithContext(ctx).AutoMigrate(&qtableRow{}, &genomeRow{}, &runRow{}); err != nil {
		closeGorm(db)
		return fmt.Errorf("migrate: %w", err)
	}
	s.db = db
	return nil
}

func (s *PostgresStore) SaveQTable(ctx context.Context, table model.QTable) error {
	if table.ID == "" {
		return ErrMissingID
	}
	payload, err := EncodeQTable(table)
	if err != nil {
		return err
	}
	return s.upsert(ctx, &qtableRow{payloadRow{
		ID:            table.ID,
		SchemaVersion: table.SchemaVersion,
		CodecVersion:  table.CodecVersion,
		Payload:       payload,
	}}, "schema_version", "codec_version", "payload")
}

func (s *PostgresStore) GetQTable(ctx context.Context, id string) (model.QTable, bool, error) {
	var row qtableRow
	ok, err := s.first(ctx, &row, id)
	if err != nil || !ok {
		return model.QTable{}, false, err
	}
	table, err := DecodeQTable(row.Payload)
	if err != nil {
		return model.QTable{}, false, fmt.Errorf("decode qtable %s: %w", id, err)
	}
	return table, true, nil
}

func (s *PostgresStore) SaveGenome(ctx context.Context, genome model.Genome) error {
	if genome.ID == "" {
		return ErrMissingID
	}
	payload, err := EncodeGenome(genome)
	if err != nil {
		return err
	}
	return s.upsert(ctx, &genomeRow{payloadRow{
		ID:            genome.ID,
		SchemaVersion: genome.SchemaVersion,
		CodecVersion:  genome.CodecVersion,
		Payload:       payload,
	}}, "schema_version", "codec_version", "payload")
}

func (s *PostgresStore) GetGenome(ctx context.Context, id string) (model.Genome, bool, error) {
	var row genomeRow
	ok, err := s.first(ctx, &row, id)
	if err != nil || !ok {
		return model.Genome{}, false, err
	}
	genome, err := DecodeGenome(row.Payload)
	if err != nil {
		return model.Genome{}, false, fmt.Errorf("decode genome %s: %w", id, err)
	}
	return genome, true, nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	if run.ID == "" {
		return ErrMissingID
	}
	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}
	return s.upsert(ctx, &runRow{
		payloadRow: payloadRow{
			ID:            run.ID,
			SchemaVersion: run.SchemaVersion,
			CodecVersion:  run.CodecVersion,
			Payload:       payload,
		},
		CreatedAtUTC: run.CreatedAtUTC,
	}, "created_at_utc", "schema_version", "codec_version", "payload")
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	var row runRow
	ok, err := s.first(ctx, &row, id)
	if err != nil || !ok {
		return model.RunRecord{}, false, err
	}
	run, err := DecodeRun(row.Payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var rows []runRow
	err = db.WithContext(ctx).
		Clauses(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "created_at_utc"}},
			{Column: clause.Column{Name: "id"}},
		}}).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	runs := make([]model.RunRecord, 0, len(rows))
	for _, row := range rows {
		run, err := DecodeRun(row.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode run %s: %w", row.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (s *PostgresStore) upsert(ctx context.Context, row any, updates ...string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(row).Error
}

func (s *PostgresStore) first(ctx context.Context, dest any, id string) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}
	err = db.WithContext(ctx).Where("id = ?", id).First(dest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) getDB() (*gorm.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func closeGorm(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
