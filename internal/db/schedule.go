package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/minseok/weft/internal/repository"
	"github.com/minseok/weft/internal/weft"
)

var _ repository.ScheduleRepository = (*ScheduleStore)(nil)

// ScheduleStore persists cron schedules.
type ScheduleStore struct {
	db *DB
}

func NewScheduleStore(db *DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

func (s *ScheduleStore) Create(ctx context.Context, sched *weft.Schedule) error {
	inputs, err := json.Marshal(sched.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}

	_, err = s.db.Pool.ExecContext(ctx, s.db.q(
		`INSERT INTO schedules (id, workflow_id, cron, inputs, enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`),
		sched.ID, sched.WorkflowID, sched.Cron, string(inputs), sched.Enabled, fmtTime(sched.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (s *ScheduleStore) Get(ctx context.Context, id string) (*weft.Schedule, error) {
	row := s.db.Pool.QueryRowContext(ctx, s.db.q(
		`SELECT id, workflow_id, cron, inputs, enabled, created_at
		 FROM schedules WHERE id = $1`), id)
	return scanSchedule(row)
}

func (s *ScheduleStore) List(ctx context.Context) ([]*weft.Schedule, error) {
	rows, err := s.db.Pool.QueryContext(ctx,
		`SELECT id, workflow_id, cron, inputs, enabled, created_at
		 FROM schedules ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []*weft.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

func (s *ScheduleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.Pool.ExecContext(ctx, s.db.q(`DELETE FROM schedules WHERE id = $1`), id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanSchedule(row rowScanner) (*weft.Schedule, error) {
	var sched weft.Schedule
	var inputs []byte
	var createdAt string

	err := row.Scan(&sched.ID, &sched.WorkflowID, &sched.Cron, &inputs, &sched.Enabled, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	if len(inputs) > 0 {
		if err := json.Unmarshal(inputs, &sched.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal inputs: %w", err)
		}
	}
	if sched.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &sched, nil
}
