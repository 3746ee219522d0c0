package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/minseok/weft/internal/repository"
	"github.com/minseok/weft/internal/weft"
)

var _ repository.WorkflowRepository = (*WorkflowStore)(nil)

// WorkflowStore persists workflows.
type WorkflowStore struct {
	db *DB
}

func NewWorkflowStore(db *DB) *WorkflowStore {
	return &WorkflowStore{db: db}
}

func (s *WorkflowStore) Create(ctx context.Context, wf *weft.Workflow) error {
	_, err := s.db.Pool.ExecContext(ctx, s.db.q(
		`INSERT INTO workflows (id, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`),
		wf.ID, wf.Name, wf.Description, fmtTime(wf.CreatedAt), fmtTime(wf.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

func (s *WorkflowStore) Get(ctx context.Context, id string) (*weft.Workflow, error) {
	row := s.db.Pool.QueryRowContext(ctx, s.db.q(
		`SELECT id, name, description, created_at, updated_at
		 FROM workflows WHERE id = $1`), id)
	return scanWorkflow(row)
}

func (s *WorkflowStore) List(ctx context.Context, limit, offset int) ([]*weft.Workflow, int, error) {
	var total int
	if err := s.db.Pool.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflows`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count workflows: %w", err)
	}

	limit, offset = pageBounds(limit, offset)
	rows, err := s.db.Pool.QueryContext(ctx, s.db.q(
		`SELECT id, name, description, created_at, updated_at
		 FROM workflows ORDER BY updated_at DESC LIMIT $1 OFFSET $2`), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []*weft.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, wf)
	}
	return out, total, rows.Err()
}

func (s *WorkflowStore) Update(ctx context.Context, wf *weft.Workflow) error {
	res, err := s.db.Pool.ExecContext(ctx, s.db.q(
		`UPDATE workflows SET name = $1, description = $2, updated_at = $3 WHERE id = $4`),
		wf.Name, wf.Description, fmtTime(wf.UpdatedAt), wf.ID,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *WorkflowStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.Pool.ExecContext(ctx, s.db.q(`DELETE FROM workflows WHERE id = $1`), id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanWorkflow(row rowScanner) (*weft.Workflow, error) {
	var wf weft.Workflow
	var createdAt, updatedAt string

	err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if wf.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if wf.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &wf, nil
}
