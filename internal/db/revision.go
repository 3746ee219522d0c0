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

var _ repository.RevisionRepository = (*RevisionStore)(nil)

// RevisionStore persists immutable workflow revisions. Documents are
// stored as JSON in the document column.
type RevisionStore struct {
	db *DB
}

func NewRevisionStore(db *DB) *RevisionStore {
	return &RevisionStore{db: db}
}

func (s *RevisionStore) Create(ctx context.Context, rev *weft.Revision) error {
	doc, err := json.Marshal(rev.Document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.db.Pool.ExecContext(ctx, s.db.q(
		`INSERT INTO revisions (id, workflow_id, version, content_hash, document, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`),
		rev.ID, rev.WorkflowID, rev.Version, rev.ContentHash, string(doc), fmtTime(rev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}
	return nil
}

func (s *RevisionStore) Get(ctx context.Context, id string) (*weft.Revision, error) {
	row := s.db.Pool.QueryRowContext(ctx, s.db.q(
		`SELECT id, workflow_id, version, content_hash, document, created_at
		 FROM revisions WHERE id = $1`), id)
	return scanRevision(row)
}

func (s *RevisionStore) ListByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*weft.Revision, int, error) {
	var total int
	if err := s.db.Pool.QueryRowContext(ctx, s.db.q(
		`SELECT COUNT(*) FROM revisions WHERE workflow_id = $1`), workflowID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count revisions: %w", err)
	}

	limit, offset = pageBounds(limit, offset)
	rows, err := s.db.Pool.QueryContext(ctx, s.db.q(
		`SELECT id, workflow_id, version, content_hash, document, created_at
		 FROM revisions WHERE workflow_id = $1 ORDER BY version DESC LIMIT $2 OFFSET $3`),
		workflowID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var out []*weft.Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rev)
	}
	return out, total, rows.Err()
}

func (s *RevisionStore) Latest(ctx context.Context, workflowID string) (*weft.Revision, error) {
	row := s.db.Pool.QueryRowContext(ctx, s.db.q(
		`SELECT id, workflow_id, version, content_hash, document, created_at
		 FROM revisions WHERE workflow_id = $1 ORDER BY version DESC LIMIT 1`), workflowID)
	return scanRevision(row)
}

func (s *RevisionStore) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	if _, err := s.db.Pool.ExecContext(ctx, s.db.q(
		`DELETE FROM revisions WHERE workflow_id = $1`), workflowID); err != nil {
		return fmt.Errorf("delete revisions: %w", err)
	}
	return nil
}

func scanRevision(row rowScanner) (*weft.Revision, error) {
	var rev weft.Revision
	var doc []byte
	var createdAt string

	err := row.Scan(&rev.ID, &rev.WorkflowID, &rev.Version, &rev.ContentHash, &doc, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan revision: %w", err)
	}

	if err := json.Unmarshal(doc, &rev.Document); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	if rev.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &rev, nil
}
