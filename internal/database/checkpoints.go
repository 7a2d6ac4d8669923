package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fbposts/pkg/pagination"
	"fbposts/pkg/post"
)

// SaveCheckpoint records where s stopped.
func (s *Store) SaveCheckpoint(ctx context.Context, runID string, summary pagination.Summary) error {
	cp := Checkpoint{
		RunID:      runID,
		Target:     summary.Target,
		Reason:     summary.Reason.String(),
		Cursor:     string(summary.Cursor),
		Resumable:  summary.Reason.Resumable(),
		Pages:      summary.Pages,
		Emitted:    summary.Emitted,
		FinishedAt: time.Now().Unix(),
	}
	if summary.Err != nil {
		cp.ErrorMessage = sql.NullString{String: summary.Err.Error(), Valid: true}
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO target_checkpoints (
			run_id, target, reason, cursor, resumable, pages, emitted, error_message, finished_at
		) VALUES (
			:run_id, :target, :reason, :cursor, :resumable, :pages, :emitted, :error_message, :finished_at
		)`, cp)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for %s: %w", summary.Target, err)
	}
	return nil
}

// LastCheckpoint returns the cursor to resume target from. ok is false when
// the target has no checkpoint or its last run ended for good.
func (s *Store) LastCheckpoint(ctx context.Context, target string) (post.Cursor, bool, error) {
	cp, err := s.latestCheckpoint(ctx, target)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load checkpoint for %s: %w", target, err)
	}
	if !cp.Resumable {
		return "", false, nil
	}
	return post.Cursor(cp.Cursor), true, nil
}

// Checkpoints lists the checkpoints of one run in insertion order.
func (s *Store) Checkpoints(ctx context.Context, runID string) ([]Checkpoint, error) {
	var cps []Checkpoint
	err := s.db.SelectContext(ctx, &cps, `SELECT * FROM target_checkpoints WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints of run %s: %w", runID, err)
	}
	return cps, nil
}

func (s *Store) latestCheckpoint(ctx context.Context, target string) (Checkpoint, error) {
	var cp Checkpoint
	err := s.db.GetContext(ctx, &cp, `
		SELECT * FROM target_checkpoints
		WHERE target = ?
		ORDER BY id DESC
		LIMIT 1`, target)
	return cp, err
}
