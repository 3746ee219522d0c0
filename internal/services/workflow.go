// Package services contains the application layer: workflow and
// revision management, run execution and lifecycle, live event fan-out,
// and cron scheduling. Services own all business rules; repositories
// below them only store, and the API above them only translates HTTP.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/minseok/weft/internal/graph"
	"github.com/minseok/weft/internal/repository"
	"github.com/minseok/weft/internal/weft"
)

// DocumentInvalidError reports a document that failed validation.
// Issues carry stable codes for clients to match on.
type DocumentInvalidError struct {
	Issues []weft.ValidationIssue
}

func (e *DocumentInvalidError) Error() string {
	return fmt.Sprintf("document invalid: %d issue(s)", len(e.Issues))
}

// maxListPage caps workflow and revision listing pages.
const maxListPage = 500

func clampPage(limit int) int {
	if limit <= 0 || limit > maxListPage {
		return maxListPage
	}
	return limit
}

// WorkflowService manages workflows and their immutable revisions.
type WorkflowService struct {
	workflows repository.WorkflowRepository
	revisions repository.RevisionRepository
}

func NewWorkflowService(workflows repository.WorkflowRepository, revisions repository.RevisionRepository) *WorkflowService {
	return &WorkflowService{workflows: workflows, revisions: revisions}
}

// Create makes a new workflow with no revisions.
func (s *WorkflowService) Create(ctx context.Context, name, description string) (*weft.Workflow, error) {
	if name == "" {
		return nil, errors.New("workflow name is required")
	}
	now := time.Now().UTC()
	wf := &weft.Workflow{
		ID:          weft.GenerateID("wf"),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.workflows.Create(ctx, wf); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	slog.Info("workflow created", "workflow_id", wf.ID, "name", wf.Name)
	return wf, nil
}

func (s *WorkflowService) Get(ctx context.Context, id string) (*weft.Workflow, error) {
	return s.workflows.Get(ctx, id)
}

func (s *WorkflowService) List(ctx context.Context, limit, offset int) ([]*weft.Workflow, int, error) {
	return s.workflows.List(ctx, clampPage(limit), offset)
}

// Update renames a workflow or changes its description. Empty name
// keeps the current one.
func (s *WorkflowService) Update(ctx context.Context, id, name, description string) (*weft.Workflow, error) {
	wf, err := s.workflows.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		wf.Name = name
	}
	wf.Description = description
	wf.UpdatedAt = time.Now().UTC()
	if err := s.workflows.Update(ctx, wf); err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}
	return wf, nil
}

// Delete removes a workflow and all of its revisions.
func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	if _, err := s.workflows.Get(ctx, id); err != nil {
		return err
	}
	if err := s.revisions.DeleteByWorkflow(ctx, id); err != nil {
		return fmt.Errorf("delete revisions: %w", err)
	}
	if err := s.workflows.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	slog.Info("workflow deleted", "workflow_id", id)
	return nil
}

// SaveRevision validates the document and snapshots it as the
// workflow's next revision. The document is normalized before hashing;
// if its content hash matches the current head revision no new version
// is minted and the head is returned as-is.
func (s *WorkflowService) SaveRevision(ctx context.Context, workflowID string, doc weft.GraphDocument) (*weft.Revision, error) {
	wf, err := s.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	res := graph.Validate(doc)
	if !res.OK {
		return nil, &DocumentInvalidError{Issues: res.Issues}
	}

	hash, err := weft.StableHash(res.Normalized)
	if err != nil {
		return nil, fmt.Errorf("hash document: %w", err)
	}

	version := 1
	head, err := s.revisions.Latest(ctx, workflowID)
	switch {
	case err == nil:
		if head.ContentHash == hash {
			slog.Debug("revision unchanged, returning head",
				"workflow_id", workflowID, "version", head.Version)
			return head, nil
		}
		version = head.Version + 1
	case errors.Is(err, repository.ErrNotFound):
		// First revision.
	default:
		return nil, fmt.Errorf("load head revision: %w", err)
	}

	rev := &weft.Revision{
		ID:          weft.GenerateID("rev"),
		WorkflowID:  workflowID,
		Version:     version,
		ContentHash: hash,
		Document:    res.Normalized,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.revisions.Create(ctx, rev); err != nil {
		return nil, fmt.Errorf("create revision: %w", err)
	}

	wf.UpdatedAt = rev.CreatedAt
	if err := s.workflows.Update(ctx, wf); err != nil {
		slog.Warn("touch workflow after revision save", "workflow_id", workflowID, "err", err)
	}

	slog.Info("revision saved",
		"workflow_id", workflowID, "revision_id", rev.ID, "version", rev.Version)
	return rev, nil
}

func (s *WorkflowService) GetRevision(ctx context.Context, id string) (*weft.Revision, error) {
	return s.revisions.Get(ctx, id)
}

func (s *WorkflowService) ListRevisions(ctx context.Context, workflowID string, limit, offset int) ([]*weft.Revision, int, error) {
	if _, err := s.workflows.Get(ctx, workflowID); err != nil {
		return nil, 0, err
	}
	return s.revisions.ListByWorkflow(ctx, workflowID, clampPage(limit), offset)
}

// LatestRevision returns the workflow's head revision.
func (s *WorkflowService) LatestRevision(ctx context.Context, workflowID string) (*weft.Revision, error) {
	return s.revisions.Latest(ctx, workflowID)
}
