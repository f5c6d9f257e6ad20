package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fieldware/fieldsync/internal/record"
)

// SaveSchedule upserts a call schedule by id, stamping updated_at when the
// record does not carry one.
func (db *DB) SaveSchedule(ctx context.Context, schedule *record.CallSchedule) error {
	if err := schedule.Validate(); err != nil {
		return fmt.Errorf("invalid call schedule: %w", err)
	}

	stamped := db.touch(schedule.UpdatedAt)
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO call_schedules (id, store_id, call_date, user_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		store_id = excluded.store_id,
		call_date = excluded.call_date,
		user_id = excluded.user_id,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at`,
		schedule.ID.String(), schedule.StoreID.String(), schedule.CallDate.String(),
		schedule.UserID, timeToNullString(schedule.CreatedAt), stamped)
	if err != nil {
		return fmt.Errorf("failed to upsert call schedule %s: %w", schedule.ID, err)
	}
	if t, perr := time.Parse(time.RFC3339, stamped); perr == nil {
		schedule.UpdatedAt = t
	}
	return nil
}

// GetSchedule retrieves a call schedule by id. Returns ErrNotFound when
// absent.
func (db *DB) GetSchedule(ctx context.Context, id record.ID) (*record.CallSchedule, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, store_id, call_date, user_id, created_at, updated_at
	FROM call_schedules WHERE id = ?`, id.String())

	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get call schedule %s: %w", id, err)
	}
	return schedule, nil
}

// GetScheduleByKey looks a schedule up by its natural key: the
// (store, call date, user) triple is unique both locally and remotely.
// Returns ErrNotFound when absent.
func (db *DB) GetScheduleByKey(ctx context.Context, storeID record.ID, date record.Date, userID int64) (*record.CallSchedule, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, store_id, call_date, user_id, created_at, updated_at
	FROM call_schedules WHERE store_id = ? AND call_date = ? AND user_id = ?`,
		storeID.String(), date.String(), userID)

	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up call schedule by key: %w", err)
	}
	return schedule, nil
}

// ListSchedules returns all local call schedules ordered by call date.
func (db *DB) ListSchedules(ctx context.Context) ([]record.CallSchedule, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, store_id, call_date, user_id, created_at, updated_at
	FROM call_schedules ORDER BY call_date ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list call schedules: %w", err)
	}
	defer rows.Close()

	var schedules []record.CallSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call schedule: %w", err)
		}
		schedules = append(schedules, *schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating call schedules: %w", err)
	}
	return schedules, nil
}

// DeleteSchedule removes a call schedule by id. Deleting a missing id is a
// no-op.
func (db *DB) DeleteSchedule(ctx context.Context, id record.ID) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM call_schedules WHERE id = ?", id.String()); err != nil {
		return fmt.Errorf("failed to delete call schedule %s: %w", id, err)
	}
	return nil
}

func scanSchedule(row rowScanner) (*record.CallSchedule, error) {
	var schedule record.CallSchedule
	var id, storeID, callDate, updatedAt string
	var createdAt sql.NullString

	if err := row.Scan(&id, &storeID, &callDate, &schedule.UserID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	schedule.ID = record.ID(id)
	schedule.StoreID = record.ID(storeID)
	date, err := record.ParseDate(callDate)
	if err != nil {
		return nil, err
	}
	schedule.CallDate = date
	schedule.CreatedAt = nullStringToTime(createdAt)
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		schedule.UpdatedAt = t
	}
	return &schedule, nil
}

// ReplaceRecordings refreshes the call recording collection from an
// authoritative server response in one transaction.
func (db *DB) ReplaceRecordings(ctx context.Context, recordings []record.CallRecording) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM call_recordings"); err != nil {
		return fmt.Errorf("failed to clear call recordings: %w", err)
	}

	for i := range recordings {
		if err := upsertRecording(ctx, tx, db, &recordings[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit recording refresh: %w", err)
	}
	return nil
}

// SaveRecording upserts a call recording by id, stamping updated_at when
// the record does not carry one. Product lines persist as a JSON column.
func (db *DB) SaveRecording(ctx context.Context, recording *record.CallRecording) error {
	if err := recording.Validate(); err != nil {
		return fmt.Errorf("invalid call recording: %w", err)
	}
	return upsertRecording(ctx, db.conn, db, recording)
}

func upsertRecording(ctx context.Context, ex execer, db *DB, recording *record.CallRecording) error {
	lines, err := json.Marshal(recording.Products)
	if err != nil {
		return fmt.Errorf("failed to marshal product lines: %w", err)
	}

	var postActivity sql.NullString
	if recording.PostActivity != nil {
		postActivity = sql.NullString{String: *recording.PostActivity, Valid: true}
	}

	stamped := db.touch(recording.UpdatedAt)
	_, err = ex.ExecContext(ctx, `
	INSERT INTO call_recordings (id, call_schedule_id, product_lines, signature,
		post_activity, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		call_schedule_id = excluded.call_schedule_id,
		product_lines = excluded.product_lines,
		signature = excluded.signature,
		post_activity = excluded.post_activity,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at`,
		recording.ID.String(), recording.CallScheduleID.String(), string(lines),
		recording.Signature, postActivity, timeToNullString(recording.CreatedAt), stamped)
	if err != nil {
		return fmt.Errorf("failed to upsert call recording %s: %w", recording.ID, err)
	}
	if t, perr := time.Parse(time.RFC3339, stamped); perr == nil {
		recording.UpdatedAt = t
	}
	return nil
}

// GetRecording retrieves a call recording by id. Returns ErrNotFound when
// absent.
func (db *DB) GetRecording(ctx context.Context, id record.ID) (*record.CallRecording, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, call_schedule_id, product_lines, signature, post_activity, created_at, updated_at
	FROM call_recordings WHERE id = ?`, id.String())

	recording, err := scanRecording(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get call recording %s: %w", id, err)
	}
	return recording, nil
}

// GetRecordingBySchedule looks a recording up through its parent schedule,
// the secondary index backing the "one recording per schedule" rule.
// Returns ErrNotFound when absent.
func (db *DB) GetRecordingBySchedule(ctx context.Context, scheduleID record.ID) (*record.CallRecording, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, call_schedule_id, product_lines, signature, post_activity, created_at, updated_at
	FROM call_recordings WHERE call_schedule_id = ? ORDER BY id ASC LIMIT 1`, scheduleID.String())

	recording, err := scanRecording(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up recording for schedule %s: %w", scheduleID, err)
	}
	return recording, nil
}

// ListRecordings returns all local call recordings, newest first.
func (db *DB) ListRecordings(ctx context.Context) ([]record.CallRecording, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, call_schedule_id, product_lines, signature, post_activity, created_at, updated_at
	FROM call_recordings ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list call recordings: %w", err)
	}
	defer rows.Close()

	var recordings []record.CallRecording
	for rows.Next() {
		recording, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call recording: %w", err)
		}
		recordings = append(recordings, *recording)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating call recordings: %w", err)
	}
	return recordings, nil
}

// DeleteRecording removes a call recording by id. Deleting a missing id is
// a no-op.
func (db *DB) DeleteRecording(ctx context.Context, id record.ID) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM call_recordings WHERE id = ?", id.String()); err != nil {
		return fmt.Errorf("failed to delete call recording %s: %w", id, err)
	}
	return nil
}

func scanRecording(row rowScanner) (*record.CallRecording, error) {
	var recording record.CallRecording
	var id, scheduleID, lines, updatedAt string
	var postActivity, createdAt sql.NullString

	if err := row.Scan(&id, &scheduleID, &lines, &recording.Signature,
		&postActivity, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	recording.ID = record.ID(id)
	recording.CallScheduleID = record.ID(scheduleID)
	if err := json.Unmarshal([]byte(lines), &recording.Products); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product lines: %w", err)
	}
	if postActivity.Valid {
		recording.PostActivity = &postActivity.String
	}
	recording.CreatedAt = nullStringToTime(createdAt)
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		recording.UpdatedAt = t
	}
	return &recording, nil
}
