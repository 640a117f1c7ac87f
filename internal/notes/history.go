package notes

import (
	"context"
	"fmt"

	"mdnotes/internal/model"
)

// Sync operation names and statuses.
const (
	OperationPull = "pull"
	OperationPush = "push"

	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// startOperation records the start of a sync. A failure to record is logged
// and does not block the sync.
func (s *Service) startOperation(ctx context.Context, userID string, repoID int64, operation string) *model.SyncOperation {
	op := &model.SyncOperation{
		UserID:       userID,
		RepositoryID: repoID,
		Operation:    operation,
		StartedAt:    s.clock.Now(),
		Status:       StatusRunning,
	}
	if err := s.database.CreateSyncOperation(ctx, op); err != nil {
		s.logger.Warn("failed to record sync operation", "operation", operation, "error", err)
		return nil
	}
	return op
}

func (s *Service) finishOperation(ctx context.Context, op *model.SyncOperation, syncErr error) {
	if op == nil {
		return
	}
	op.Status = StatusSuccess
	if syncErr != nil {
		op.Status = StatusError
	}
	now := s.clock.Now()
	op.FinishedAt = &now
	if err := s.database.FinishSyncOperation(ctx, op.ID, op.Status, now); err != nil {
		s.logger.Warn("failed to finish sync operation", "id", op.ID, "error", err)
	}
}

// History returns the most recent sync operations, ordered newest first.
// An empty userID lists the operations of every user.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*model.SyncOperation, error) {
	ops, err := s.database.ListSyncOperations(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync operations: %w", err)
	}
	return ops, nil
}
