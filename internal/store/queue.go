package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldware/fieldsync/internal/record"
)

// Op is the kind of write a queued mutation represents.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// QueueEntry is one pending mutation: a write that could not be confirmed
// against the server and is waiting for the sync engine to replay it.
//
// Entries are strictly FIFO. An update queued after a create for the same
// temporary id depends on the create having resolved first, so replay order
// is the concurrency-safety mechanism. Never reorder.
type QueueEntry struct {
	ID         int64
	Op         Op
	Resource   record.Resource
	TargetID   record.ID
	Payload    json.RawMessage
	EnqueuedAt time.Time
	Retries    int
}

// Enqueue appends a mutation to the queue with a fresh auto-increment id,
// an "enqueued now" timestamp, and a zero retry counter. The payload is
// marshalled as JSON.
func (db *DB) Enqueue(ctx context.Context, op Op, resource record.Resource, target record.ID, payload any) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal queue payload: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO sync_queue (op, resource, target_id, payload, enqueued_at, retries)
	VALUES (?, ?, ?, ?, ?, 0)`,
		string(op), string(resource), target.String(), string(body),
		db.now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s %s: %w", op, resource, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue id: %w", err)
	}
	return id, nil
}

// PendingMutations returns every queued entry in insertion order.
func (db *DB) PendingMutations(ctx context.Context) ([]QueueEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, op, resource, target_id, payload, enqueued_at, retries
	FROM sync_queue ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync queue: %w", err)
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var e QueueEntry
		var op, resource, target, payload, enqueuedAt string
		if err := rows.Scan(&e.ID, &op, &resource, &target, &payload, &enqueuedAt, &e.Retries); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		e.Op = Op(op)
		e.Resource = record.Resource(resource)
		e.TargetID = record.ID(target)
		e.Payload = json.RawMessage(payload)
		if t, err := time.Parse(time.RFC3339, enqueuedAt); err == nil {
			e.EnqueuedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync queue: %w", err)
	}
	return entries, nil
}

// RemoveMutation drops a single entry after its remote write was confirmed.
// Removing a missing id is a no-op.
func (db *DB) RemoveMutation(ctx context.Context, queueID int64) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", queueID); err != nil {
		return fmt.Errorf("failed to remove queue entry %d: %w", queueID, err)
	}
	return nil
}

// IncrementRetry bumps the retry counter of a failed entry, leaving it
// queued for a later cycle.
func (db *DB) IncrementRetry(ctx context.Context, queueID int64) error {
	if _, err := db.conn.ExecContext(ctx,
		"UPDATE sync_queue SET retries = retries + 1 WHERE id = ?", queueID); err != nil {
		return fmt.Errorf("failed to bump retries for queue entry %d: %w", queueID, err)
	}
	return nil
}

// ClearQueue wipes every pending mutation. Explicit-reset path only; a
// normal sync removes entries one by one as they are confirmed.
func (db *DB) ClearQueue(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM sync_queue"); err != nil {
		return fmt.Errorf("failed to clear sync queue: %w", err)
	}
	return nil
}

// QueueDepth returns the number of pending mutations.
func (db *DB) QueueDepth(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_queue").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync queue: %w", err)
	}
	return n, nil
}
