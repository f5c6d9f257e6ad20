package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldware/fieldsync/internal/record"
	"github.com/fieldware/fieldsync/internal/remote"
	"github.com/fieldware/fieldsync/internal/store"
)

// ScheduleGateway resolves (store, date, user) triples to call schedules.
type ScheduleGateway struct {
	*base
}

// GetOrCreate finds the schedule for the triple, creating it when needed.
// Online it uses the server's idempotent get-or-create endpoint. Offline it
// first checks the local cache for the natural key (creating a duplicate
// schedule for a triple that already exists locally is never correct) and
// only then mints a temporary one and queues its creation.
func (g *ScheduleGateway) GetOrCreate(ctx context.Context, storeID record.ID, callDate record.Date, userID int64) (*record.CallSchedule, error) {
	if g.oracle.Online() && !storeID.IsTemp() {
		schedule, err := g.remote.GetOrCreateSchedule(ctx, storeID, callDate, userID)
		if err == nil {
			if err := g.store.SaveSchedule(ctx, schedule); err != nil {
				return nil, err
			}
			return schedule, nil
		}
		if !g.fellBack("get-or-create schedule", err) {
			return nil, err
		}
	}

	existing, err := g.store.GetScheduleByKey(ctx, storeID, callDate, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	schedule := record.CallSchedule{
		ID:        g.ids.TempID(),
		StoreID:   storeID,
		CallDate:  callDate,
		UserID:    userID,
		CreatedAt: g.now(),
		UpdatedAt: g.now(),
	}
	if err := g.store.SaveSchedule(ctx, &schedule); err != nil {
		return nil, err
	}
	if _, err := g.store.Enqueue(ctx, store.OpCreate, record.ResourceCallSchedule, schedule.ID, schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// Get returns one schedule from the local cache.
func (g *ScheduleGateway) Get(ctx context.Context, id record.ID) (*record.CallSchedule, error) {
	return g.store.GetSchedule(ctx, id)
}

// RecordingGateway is the connectivity-transparent surface for call
// recordings.
type RecordingGateway struct {
	*base
}

// GetBySchedule returns the recording attached to a schedule. A server 404
// means the schedule genuinely has no recording, and that verdict wins over
// any stale local copy.
func (g *RecordingGateway) GetBySchedule(ctx context.Context, scheduleID record.ID) (*record.CallRecording, error) {
	if g.oracle.Online() && !scheduleID.IsTemp() {
		recording, err := g.remote.GetRecordingBySchedule(ctx, scheduleID)
		if err == nil {
			if err := g.store.SaveRecording(ctx, recording); err != nil {
				return nil, err
			}
			return recording, nil
		}
		if !g.fellBack("get recording by schedule", err) {
			return nil, err
		}
	}
	return g.store.GetRecordingBySchedule(ctx, scheduleID)
}

// List returns all recordings, refreshing the cache when online.
func (g *RecordingGateway) List(ctx context.Context) ([]record.CallRecording, error) {
	if g.oracle.Online() {
		recordings, err := g.remote.ListRecordings(ctx)
		if err == nil {
			if err := g.store.ReplaceRecordings(ctx, recordings); err != nil {
				return nil, err
			}
			return recordings, nil
		}
		if !g.fellBack("list recordings", err) {
			return nil, err
		}
	}
	return g.store.ListRecordings(ctx)
}

// Create records a completed call. Recordings whose parent schedule still
// has a temporary id always take the offline path; the sync engine wires
// the parent up once the schedule create lands.
func (g *RecordingGateway) Create(ctx context.Context, recording record.CallRecording) (*record.CallRecording, error) {
	if g.oracle.Online() && !recording.CallScheduleID.IsTemp() {
		created, err := g.remote.CreateRecording(ctx, createRecordingBody(recording))
		if err == nil {
			if err := g.store.SaveRecording(ctx, created); err != nil {
				return nil, err
			}
			return created, nil
		}
		if !g.fellBack("create recording", err) {
			return nil, err
		}
	}

	recording.ID = g.ids.TempID()
	recording.CreatedAt = g.now()
	recording.UpdatedAt = g.now()
	if err := g.store.SaveRecording(ctx, &recording); err != nil {
		return nil, err
	}
	if _, err := g.store.Enqueue(ctx, store.OpCreate, record.ResourceCallRecording, recording.ID, recording); err != nil {
		return nil, err
	}
	return &recording, nil
}

// Update rewrites a recording. Temporary ids always take the offline path.
func (g *RecordingGateway) Update(ctx context.Context, id record.ID, recording record.CallRecording) (*record.CallRecording, error) {
	if g.oracle.Online() && !id.IsTemp() && !recording.CallScheduleID.IsTemp() {
		updated, err := g.remote.UpdateRecording(ctx, id, createRecordingBody(recording))
		if err == nil {
			if err := g.store.SaveRecording(ctx, updated); err != nil {
				return nil, err
			}
			return updated, nil
		}
		if !g.fellBack("update recording", err) {
			return nil, err
		}
	}

	existing, err := g.store.GetRecording(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cannot update recording %s: %w", id, err)
	}
	recording.ID = id
	if recording.CallScheduleID.IsZero() {
		recording.CallScheduleID = existing.CallScheduleID
	}
	recording.CreatedAt = existing.CreatedAt
	recording.UpdatedAt = g.now()
	if err := g.store.SaveRecording(ctx, &recording); err != nil {
		return nil, err
	}
	if _, err := g.store.Enqueue(ctx, store.OpUpdate, record.ResourceCallRecording, id, recording); err != nil {
		return nil, err
	}
	return &recording, nil
}

// UpdatePostActivity sets the post-activity note through its dedicated
// endpoint when possible, falling back to a queued partial update.
func (g *RecordingGateway) UpdatePostActivity(ctx context.Context, id record.ID, postActivity *string) (*record.CallRecording, error) {
	if g.oracle.Online() && !id.IsTemp() {
		updated, err := g.remote.UpdatePostActivity(ctx, id, postActivity)
		if err == nil {
			if err := g.store.SaveRecording(ctx, updated); err != nil {
				return nil, err
			}
			return updated, nil
		}
		if !g.fellBack("update post activity", err) {
			return nil, err
		}
	}

	existing, err := g.store.GetRecording(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cannot update recording %s: %w", id, err)
	}
	existing.PostActivity = postActivity
	existing.UpdatedAt = g.now()
	if err := g.store.SaveRecording(ctx, existing); err != nil {
		return nil, err
	}
	payload := map[string]any{"id": id, "post_activity": postActivity}
	if _, err := g.store.Enqueue(ctx, store.OpUpdate, record.ResourceCallRecording, id, payload); err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete removes a recording. A server 404 counts as success.
func (g *RecordingGateway) Delete(ctx context.Context, id record.ID) error {
	if g.oracle.Online() && !id.IsTemp() {
		err := g.remote.DeleteRecording(ctx, id)
		if err == nil || remote.IsNotFound(err) {
			return g.store.DeleteRecording(ctx, id)
		}
		if !g.fellBack("delete recording", err) {
			return err
		}
	}

	if err := g.store.DeleteRecording(ctx, id); err != nil {
		return err
	}
	if _, err := g.store.Enqueue(ctx, store.OpDelete, record.ResourceCallRecording, id, nil); err != nil {
		return err
	}
	return nil
}

// createRecordingBody is the payload a recording write sends: user fields
// only, with product lines in their canonical object form.
func createRecordingBody(recording record.CallRecording) map[string]any {
	return map[string]any{
		"call_schedule_id": recording.CallScheduleID,
		"product_id":       recording.Products,
		"signature":        recording.Signature,
		"post_activity":    recording.PostActivity,
	}
}
