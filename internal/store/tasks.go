package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fieldware/fieldsync/internal/record"
)

// ReplaceTasks clears the task collection and refills it with the given
// records in one transaction. This is the authoritative-refresh path used
// after a server pull; incremental offline writes go through SaveTask.
func (db *DB) ReplaceTasks(ctx context.Context, tasks []record.Task) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}

	for i := range tasks {
		if err := upsertTask(ctx, tx, db, &tasks[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task refresh: %w", err)
	}
	return nil
}

// SaveTask upserts a single task by id, stamping updated_at when the record
// does not carry one.
func (db *DB) SaveTask(ctx context.Context, task *record.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	return upsertTask(ctx, db.conn, db, task)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertTask(ctx context.Context, ex execer, db *DB, task *record.Task) error {
	stamped := db.touch(task.UpdatedAt)
	query := `
	INSERT INTO tasks (id, title, description, completed, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		completed = excluded.completed,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
	`
	_, err := ex.ExecContext(ctx, query,
		task.ID.String(),
		task.Title,
		task.Description,
		boolToInt(task.Completed),
		timeToNullString(task.CreatedAt),
		stamped,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", task.ID, err)
	}
	if t, perr := time.Parse(time.RFC3339, stamped); perr == nil {
		task.UpdatedAt = t
	}
	return nil
}

// GetTask retrieves a task by id. Returns ErrNotFound when absent.
func (db *DB) GetTask(ctx context.Context, id record.ID) (*record.Task, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, title, description, completed, created_at, updated_at
	FROM tasks WHERE id = ?`, id.String())

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return task, nil
}

// ListTasks returns all local tasks ordered by last update, newest first.
func (db *DB) ListTasks(ctx context.Context) ([]record.Task, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, title, description, completed, created_at, updated_at
	FROM tasks ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []record.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// DeleteTask removes a task by id. Deleting a missing id is a no-op.
func (db *DB) DeleteTask(ctx context.Context, id record.ID) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id.String()); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*record.Task, error) {
	var task record.Task
	var id, updatedAt string
	var completed int
	var createdAt sql.NullString

	if err := row.Scan(&id, &task.Title, &task.Description, &completed, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	task.ID = record.ID(id)
	task.Completed = completed != 0
	task.CreatedAt = nullStringToTime(createdAt)
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		task.UpdatedAt = t
	}
	return &task, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
