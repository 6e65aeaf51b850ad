package database

import (
	"context"
	"fmt"
	"time"
)

// Deletion kinds in the outbox.
const (
	DeletionFolder = "folder"
	DeletionObject = "object"
)

// PendingDeletion is one queued storage purge. Purges live in the database
// rather than in-memory timers so a process restart does not lose them.
type PendingDeletion struct {
	ID        int64
	Kind      string
	Key       string
	Attempts  int
	CreatedAt time.Time
}

// EnqueueDeletion records a storage purge to be performed by the outbox
// drain job.
func (r *Repository) EnqueueDeletion(ctx context.Context, kind, key string) error {
	query := `
		INSERT INTO deletion_outbox (kind, key, attempts, next_attempt_at)
		VALUES ($1, $2, 0, now())
	`

	if _, err := r.db.Pool.Exec(ctx, query, kind, key); err != nil {
		return fmt.Errorf("failed to enqueue deletion: %w", err)
	}

	return nil
}

// DueDeletions returns purges whose next attempt is due, oldest first,
// skipping entries that have exhausted their attempts.
func (r *Repository) DueDeletions(ctx context.Context, limit, maxAttempts int) ([]PendingDeletion, error) {
	query := `
		SELECT id, kind, key, attempts, created_at
		FROM deletion_outbox
		WHERE next_attempt_at <= now() AND attempts < $2
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to list due deletions: %w", err)
	}
	defer rows.Close()

	var pending []PendingDeletion
	for rows.Next() {
		var p PendingDeletion
		if err := rows.Scan(&p.ID, &p.Kind, &p.Key, &p.Attempts, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending deletion: %w", err)
		}
		pending = append(pending, p)
	}

	return pending, nil
}

// MarkDeletionAttempt bumps the attempt counter and backs the entry off.
func (r *Repository) MarkDeletionAttempt(ctx context.Context, id int64, backoff time.Duration) error {
	query := `
		UPDATE deletion_outbox
		SET attempts = attempts + 1, next_attempt_at = now() + $2
		WHERE id = $1
	`

	if _, err := r.db.Pool.Exec(ctx, query, id, backoff); err != nil {
		return fmt.Errorf("failed to mark deletion attempt: %w", err)
	}

	return nil
}

// RemoveDeletion drops a completed purge from the outbox.
func (r *Repository) RemoveDeletion(ctx context.Context, id int64) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM deletion_outbox WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to remove deletion: %w", err)
	}

	return nil
}
