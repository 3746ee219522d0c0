package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/minseok/weft/internal/repository"
	"github.com/minseok/weft/internal/weft"
)

var _ repository.RunRepository = (*RunStore)(nil)

// RunStore persists run records.
type RunStore struct {
	db *DB
}

func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) Create(ctx context.Context, run *weft.Run) error {
	inputs, err := json.Marshal(run.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	tags, err := json.Marshal(run.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.Pool.ExecContext(ctx, s.db.q(
		`INSERT INTO runs (id, workflow_id, revision_id, status, inputs, tags, group_id,
		                   final_output, error, cancel_requested, created_at, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`),
		run.ID, run.WorkflowID, run.RevisionID, string(run.Status), string(inputs), string(tags),
		run.GroupID, run.FinalOutput, run.Error, run.CancelRequested,
		fmtTime(run.CreatedAt), fmtTimePtr(run.StartedAt), fmtTimePtr(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) Get(ctx context.Context, id string) (*weft.Run, error) {
	row := s.db.Pool.QueryRowContext(ctx, s.db.q(
		`SELECT id, workflow_id, revision_id, status, inputs, tags, group_id,
		        final_output, error, cancel_requested, created_at, started_at, finished_at
		 FROM runs WHERE id = $1`), id)
	return scanRun(row)
}

// Update overwrites a run row unless the stored status is already
// terminal; terminal runs are immutable at the storage layer, so a
// racing writer can never resurrect a finished run. The cancel flag is
// OR-ed with the stored value, so a writer holding a stale copy cannot
// clear a flag that SetCancelRequested persisted in the meantime.
func (s *RunStore) Update(ctx context.Context, run *weft.Run) error {
	inputs, err := json.Marshal(run.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	tags, err := json.Marshal(run.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	res, err := s.db.Pool.ExecContext(ctx, s.db.q(
		`UPDATE runs SET status = $1, inputs = $2, tags = $3, group_id = $4,
		        final_output = $5, error = $6,
		        cancel_requested = (cancel_requested OR $7),
		        started_at = $8, finished_at = $9
		 WHERE id = $10 AND status NOT IN ('completed', 'failed', 'cancelled')`),
		string(run.Status), string(inputs), string(tags), run.GroupID,
		run.FinalOutput, run.Error, run.CancelRequested,
		fmtTimePtr(run.StartedAt), fmtTimePtr(run.FinishedAt), run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Missing row or terminal no-op; tell the two apart.
		if _, err := s.Get(ctx, run.ID); err != nil {
			return err
		}
	}
	return nil
}

// SetCancelRequested flips only the cancel flag, leaving every other
// column to the executor's writes. Terminal runs are a silent no-op.
func (s *RunStore) SetCancelRequested(ctx context.Context, id string) error {
	res, err := s.db.Pool.ExecContext(ctx, s.db.q(
		`UPDATE runs SET cancel_requested = TRUE
		 WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`), id)
	if err != nil {
		return fmt.Errorf("set cancel_requested: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *RunStore) List(ctx context.Context, filter weft.RunFilter) ([]*weft.Run, int, error) {
	where, args := runFilterClauses(filter)

	var total int
	if err := s.db.Pool.QueryRowContext(ctx,
		s.db.q(`SELECT COUNT(*) FROM runs`+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset)
	pageArgs := append(append([]any{}, args...), limit, offset)
	query := `SELECT id, workflow_id, revision_id, status, inputs, tags, group_id,
	                 final_output, error, cancel_requested, created_at, started_at, finished_at
	          FROM runs` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	rows, err := s.db.Pool.QueryContext(ctx, s.db.q(query), pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*weft.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, run)
	}
	return out, total, rows.Err()
}

func runFilterClauses(filter weft.RunFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if filter.WorkflowID != "" {
		add("workflow_id", filter.WorkflowID)
	}
	if filter.RevisionID != "" {
		add("revision_id", filter.RevisionID)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanRun(row rowScanner) (*weft.Run, error) {
	var run weft.Run
	var status string
	var inputs, tags []byte
	var createdAt string
	var startedAt, finishedAt sql.NullString

	err := row.Scan(&run.ID, &run.WorkflowID, &run.RevisionID, &status, &inputs, &tags,
		&run.GroupID, &run.FinalOutput, &run.Error, &run.CancelRequested,
		&createdAt, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.Status = weft.RunStatus(status)
	if len(inputs) > 0 {
		if err := json.Unmarshal(inputs, &run.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal inputs: %w", err)
		}
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &run.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if run.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = parseTimePtr(finishedAt); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	return &run, nil
}
