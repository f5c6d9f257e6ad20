// Package engine reconciles local and remote state.
//
// A full sync runs two phases in a fixed order: push (drain the mutation
// queue against the server, strictly FIFO) and then pull (refresh the local
// cache from the server's authoritative collections). Push must come first:
// pulling before local creations have been pushed would overwrite them.
//
// There is no transactional rollback across phases: whatever the push
// committed stays committed even when the pull fails.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldware/fieldsync/internal/connectivity"
	"github.com/fieldware/fieldsync/internal/record"
	"github.com/fieldware/fieldsync/internal/remote"
	"github.com/fieldware/fieldsync/internal/store"
)

// ErrOffline is returned when a sync is requested without connectivity.
var ErrOffline = errors.New("cannot sync: device is offline")

// ErrSyncInProgress is returned when a sync is requested while another one
// is still running. Callers skip, they never queue a second sync.
var ErrSyncInProgress = errors.New("sync already in progress")

// PushFailure pairs a queue entry that could not be replayed with the
// reason it failed. The entry stays queued with its retry counter bumped.
type PushFailure struct {
	Entry  store.QueueEntry
	Reason string
}

// PushReport partitions one drain pass: entries confirmed and removed,
// entries that failed, and entries skipped because their temporary id could
// not be resolved yet.
type PushReport struct {
	Succeeded []store.QueueEntry
	Failed    []PushFailure
	Skipped   []store.QueueEntry
}

// Report summarizes a full sync.
type Report struct {
	Push     *PushReport
	Pulled   bool
	Duration time.Duration
}

// Config wires an Engine.
type Config struct {
	Store  *store.DB
	Remote *remote.Client
	Oracle connectivity.Oracle

	// UserID scopes the store pull to the signed-in rep.
	UserID int64

	// Today supplies the call date for the store pull. Defaults to the
	// current day; injected for tests.
	Today func() record.Date

	Logger *logrus.Logger

	// OnEvent, when set, receives sync lifecycle notifications (for the
	// status dashboard). Must not block.
	OnEvent func(Event)
}

// Engine orchestrates bidirectional synchronization. All public sync
// operations, manual and autonomous alike, share one in-flight guard, so at
// most one sync runs at a time and concurrent requests fail fast with
// ErrSyncInProgress.
type Engine struct {
	store  *store.DB
	remote *remote.Client
	oracle connectivity.Oracle
	userID int64
	today  func() record.Date
	logger *logrus.Entry
	events func(Event)

	mu sync.Mutex // in-flight guard
}

// New creates a sync engine. Store, Remote, and Oracle are required.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Remote == nil {
		return nil, fmt.Errorf("remote client cannot be nil")
	}
	if cfg.Oracle == nil {
		return nil, fmt.Errorf("connectivity oracle cannot be nil")
	}
	if cfg.Today == nil {
		cfg.Today = func() record.Date { return record.DateOf(time.Now()) }
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
		cfg.Logger.SetOutput(io.Discard)
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = func(Event) {}
	}
	return &Engine{
		store:  cfg.Store,
		remote: cfg.Remote,
		oracle: cfg.Oracle,
		userID: cfg.UserID,
		today:  cfg.Today,
		logger: cfg.Logger.WithField("component", "engine"),
		events: cfg.OnEvent,
	}, nil
}

// SyncToServer drains the mutation queue against the server. Fails fast
// when offline or when another sync holds the guard.
func (e *Engine) SyncToServer(ctx context.Context) (*PushReport, error) {
	if !e.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer e.mu.Unlock()
	return e.push(ctx)
}

// SyncFromServer refreshes the local cache from the server's authoritative
// collections. Fails fast when offline or when another sync holds the
// guard. Outside tests this should only run as the second phase of
// FullSync; pulling with mutations still queued can overwrite them.
func (e *Engine) SyncFromServer(ctx context.Context) error {
	if !e.mu.TryLock() {
		return ErrSyncInProgress
	}
	defer e.mu.Unlock()
	return e.pull(ctx)
}

// FullSync pushes then pulls. Partial progress survives an error in either
// phase.
func (e *Engine) FullSync(ctx context.Context) (*Report, error) {
	if !e.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer e.mu.Unlock()

	start := time.Now()
	e.emit(Event{Type: EventSyncStarted, At: start})

	report := &Report{}
	push, err := e.push(ctx)
	report.Push = push
	if err != nil {
		e.emit(Event{Type: EventSyncFailed, At: time.Now(), Error: err.Error()})
		return report, err
	}

	if err := e.pull(ctx); err != nil {
		e.emit(Event{Type: EventSyncFailed, At: time.Now(), Error: err.Error()})
		return report, err
	}
	report.Pulled = true
	report.Duration = time.Since(start)

	depth, derr := e.store.QueueDepth(ctx)
	if derr != nil {
		depth = -1
	}
	e.emit(Event{Type: EventSyncCompleted, At: time.Now(), QueueDepth: depth})
	return report, nil
}

// push drains the queue in insertion order. One failing entry never blocks
// the rest: it stays queued with its retry counter bumped while the drain
// continues.
func (e *Engine) push(ctx context.Context) (*PushReport, error) {
	if !e.oracle.Online() {
		return nil, ErrOffline
	}

	entries, err := e.store.PendingMutations(ctx)
	if err != nil {
		return nil, err
	}

	report := &PushReport{}
	// Temporary ids resolved this cycle. A create earlier in the queue
	// feeds the updates and deletes that follow it (FIFO dependency).
	idMap := make(map[record.ID]record.ID)

	for _, entry := range entries {
		outcome, err := e.apply(ctx, entry, idMap)
		switch {
		case err != nil:
			e.logger.WithError(err).WithFields(logrus.Fields{
				"queue_id": entry.ID,
				"op":       entry.Op,
				"resource": entry.Resource,
			}).Warn("queued mutation failed, leaving for retry")
			if rerr := e.store.IncrementRetry(ctx, entry.ID); rerr != nil {
				return report, rerr
			}
			report.Failed = append(report.Failed, PushFailure{Entry: entry, Reason: err.Error()})

		case outcome == outcomeSkipped:
			e.logger.WithField("queue_id", entry.ID).Debug("temporary id not resolvable yet, skipping entry this cycle")
			report.Skipped = append(report.Skipped, entry)

		default:
			if rerr := e.store.RemoveMutation(ctx, entry.ID); rerr != nil {
				return report, rerr
			}
			report.Succeeded = append(report.Succeeded, entry)
		}
	}

	e.emit(Event{
		Type:       EventPushCompleted,
		At:         time.Now(),
		Succeeded:  len(report.Succeeded),
		Failed:     len(report.Failed),
		QueueDepth: len(report.Failed) + len(report.Skipped),
	})
	return report, nil
}

type outcome int

const (
	outcomeApplied outcome = iota
	outcomeSkipped
)

// apply replays one queued mutation. It returns outcomeSkipped when the
// entry's temporary id cannot be resolved this cycle and the entry should
// stay queued untouched.
func (e *Engine) apply(ctx context.Context, entry store.QueueEntry, idMap map[record.ID]record.ID) (outcome, error) {
	switch entry.Resource {
	case record.ResourceTask:
		return e.applyTask(ctx, entry, idMap)
	case record.ResourceCallSchedule:
		return e.applySchedule(ctx, entry, idMap)
	case record.ResourceCallRecording:
		return e.applyRecording(ctx, entry, idMap)
	default:
		// Unknown resources cannot ever succeed; dropping beats retrying
		// forever.
		e.logger.WithField("resource", entry.Resource).Warn("dropping queue entry for unknown resource")
		return outcomeApplied, nil
	}
}

func (e *Engine) applyTask(ctx context.Context, entry store.QueueEntry, idMap map[record.ID]record.ID) (outcome, error) {
	target := resolveID(entry.TargetID, idMap)

	switch entry.Op {
	case store.OpCreate:
		body, err := pushBody(entry.Payload, idMap)
		if err != nil {
			return outcomeApplied, err
		}
		created, err := e.remote.CreateTask(ctx, body)
		if err != nil {
			return outcomeApplied, err
		}
		return outcomeApplied, e.confirmTask(ctx, entry.TargetID, created, idMap)

	case store.OpUpdate:
		body, err := pushBody(entry.Payload, idMap)
		if err != nil {
			return outcomeApplied, err
		}
		if target.IsTemp() {
			// The create this update depends on never reached the server
			// (synced in a failed earlier cycle, or dropped). Replay the
			// update as a create so the data is not lost.
			created, err := e.remote.CreateTask(ctx, body)
			if err != nil {
				return outcomeApplied, err
			}
			return outcomeApplied, e.confirmTask(ctx, target, created, idMap)
		}
		updated, err := e.remote.UpdateTask(ctx, target, body)
		if err != nil {
			if remote.IsNotFound(err) {
				// Already deleted remotely; nothing left to update.
				return outcomeApplied, e.store.DeleteTask(ctx, target)
			}
			return outcomeApplied, err
		}
		return outcomeApplied, e.store.SaveTask(ctx, updated)

	case store.OpDelete:
		if target.IsTemp() {
			// Never reached the server, so there is nothing to delete.
			return outcomeApplied, nil
		}
		if err := e.remote.DeleteTask(ctx, target); err != nil && !remote.IsNotFound(err) {
			return outcomeApplied, err
		}
		return outcomeApplied, e.store.DeleteTask(ctx, target)

	default:
		return outcomeApplied, fmt.Errorf("unknown op %q", entry.Op)
	}
}

func (e *Engine) confirmTask(ctx context.Context, tempID record.ID, created *record.Task, idMap map[record.ID]record.ID) error {
	// The canonical copy replaces the temporary one; two local copies of
	// the same logical record must never coexist after a sync.
	if tempID.IsTemp() {
		if err := e.store.DeleteTask(ctx, tempID); err != nil {
			return err
		}
		idMap[tempID] = created.ID
	}
	return e.store.SaveTask(ctx, created)
}

func (e *Engine) applySchedule(ctx context.Context, entry store.QueueEntry, idMap map[record.ID]record.ID) (outcome, error) {
	if entry.Op != store.OpCreate {
		// The app never edits or deletes schedules; anything else queued
		// here is garbage from an older build.
		e.logger.WithField("op", entry.Op).Warn("dropping unsupported schedule mutation")
		return outcomeApplied, nil
	}

	var schedule record.CallSchedule
	if err := json.Unmarshal(entry.Payload, &schedule); err != nil {
		return outcomeApplied, fmt.Errorf("bad schedule payload: %w", err)
	}

	// Replays go through the idempotent get-or-create endpoint with just
	// the natural key, so a retry after a half-failed cycle cannot create
	// a duplicate.
	canonical, err := e.remote.GetOrCreateSchedule(ctx, schedule.StoreID, schedule.CallDate, schedule.UserID)
	if err != nil {
		return outcomeApplied, err
	}

	if entry.TargetID.IsTemp() {
		if err := e.store.DeleteSchedule(ctx, entry.TargetID); err != nil {
			return outcomeApplied, err
		}
		idMap[entry.TargetID] = canonical.ID

		// Recordings captured offline against the temporary schedule
		// follow it to the canonical id.
		if rec, rerr := e.store.GetRecordingBySchedule(ctx, entry.TargetID); rerr == nil {
			rec.CallScheduleID = canonical.ID
			if serr := e.store.SaveRecording(ctx, rec); serr != nil {
				return outcomeApplied, serr
			}
		} else if !errors.Is(rerr, store.ErrNotFound) {
			return outcomeApplied, rerr
		}
	}
	return outcomeApplied, e.store.SaveSchedule(ctx, canonical)
}

func (e *Engine) applyRecording(ctx context.Context, entry store.QueueEntry, idMap map[record.ID]record.ID) (outcome, error) {
	target := resolveID(entry.TargetID, idMap)

	switch entry.Op {
	case store.OpCreate:
		body, err := pushBody(entry.Payload, idMap)
		if err != nil {
			return outcomeApplied, err
		}
		if scheduleID := payloadID(body["call_schedule_id"]); scheduleID.IsTemp() {
			// Parent schedule not confirmed yet; wait for a later cycle.
			return outcomeSkipped, nil
		}
		created, err := e.remote.CreateRecording(ctx, body)
		if err != nil {
			return outcomeApplied, err
		}
		return outcomeApplied, e.confirmRecording(ctx, entry.TargetID, created, idMap)

	case store.OpUpdate:
		body, err := pushBody(entry.Payload, idMap)
		if err != nil {
			return outcomeApplied, err
		}
		if target.IsTemp() {
			resolved, oc, err := e.resolveRecordingID(ctx, target, body)
			if err != nil || oc == outcomeSkipped {
				return oc, err
			}
			idMap[entry.TargetID] = resolved
			if derr := e.store.DeleteRecording(ctx, target); derr != nil {
				return outcomeApplied, derr
			}
			target = resolved
		}

		updated, err := e.pushRecordingUpdate(ctx, target, body)
		if err != nil {
			if remote.IsNotFound(err) {
				return outcomeApplied, e.store.DeleteRecording(ctx, target)
			}
			return outcomeApplied, err
		}
		return outcomeApplied, e.store.SaveRecording(ctx, updated)

	case store.OpDelete:
		if target.IsTemp() {
			return outcomeApplied, nil
		}
		if err := e.remote.DeleteRecording(ctx, target); err != nil && !remote.IsNotFound(err) {
			return outcomeApplied, err
		}
		return outcomeApplied, e.store.DeleteRecording(ctx, target)

	default:
		return outcomeApplied, fmt.Errorf("unknown op %q", entry.Op)
	}
}

// resolveRecordingID finds the canonical id for a temporary recording by
// the natural key: one recording per schedule, so the parent schedule
// identifies it. Unresolvable entries are skipped, not failed; a later
// cycle may succeed once the parent has synced.
//
// If the server ever held several recordings for the schedule the lookup
// would be ambiguous; the endpoint returns the first match and that is what
// we take, logged for the record.
func (e *Engine) resolveRecordingID(ctx context.Context, tempID record.ID, body map[string]any) (record.ID, outcome, error) {
	scheduleID := payloadID(body["call_schedule_id"])
	if scheduleID.IsZero() {
		if local, err := e.store.GetRecording(ctx, tempID); err == nil {
			scheduleID = local.CallScheduleID
		} else if !errors.Is(err, store.ErrNotFound) {
			return "", outcomeApplied, err
		}
	}
	if scheduleID.IsZero() || scheduleID.IsTemp() {
		return "", outcomeSkipped, nil
	}

	remoteRec, err := e.remote.GetRecordingBySchedule(ctx, scheduleID)
	if err != nil {
		if remote.IsNotFound(err) {
			return "", outcomeSkipped, nil
		}
		return "", outcomeApplied, err
	}

	e.logger.WithFields(logrus.Fields{
		"temp_id":      tempID,
		"canonical_id": remoteRec.ID,
		"schedule_id":  scheduleID,
	}).Info("resolved temporary recording id via schedule lookup")
	return remoteRec.ID, outcomeApplied, nil
}

// pushRecordingUpdate picks the endpoint for a queued update: partial
// post-activity payloads go through the dedicated route, full payloads
// through the general one.
func (e *Engine) pushRecordingUpdate(ctx context.Context, id record.ID, body map[string]any) (*record.CallRecording, error) {
	if postActivity, ok := body["post_activity"]; ok && len(body) == 1 {
		var text *string
		switch v := postActivity.(type) {
		case string:
			text = &v
		case nil:
		default:
			return nil, fmt.Errorf("bad post_activity payload of type %T", v)
		}
		return e.remote.UpdatePostActivity(ctx, id, text)
	}
	return e.remote.UpdateRecording(ctx, id, body)
}

func (e *Engine) confirmRecording(ctx context.Context, tempID record.ID, created *record.CallRecording, idMap map[record.ID]record.ID) error {
	if tempID.IsTemp() {
		if err := e.store.DeleteRecording(ctx, tempID); err != nil {
			return err
		}
		idMap[tempID] = created.ID
	}
	return e.store.SaveRecording(ctx, created)
}

// pull refreshes every entity collection from the server. Each collection
// replace is atomic per type; an error leaves earlier refreshes committed.
func (e *Engine) pull(ctx context.Context) error {
	if !e.oracle.Online() {
		return ErrOffline
	}

	tasks, err := e.remote.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to pull tasks: %w", err)
	}
	if err := e.store.ReplaceTasks(ctx, tasks); err != nil {
		return err
	}

	products, err := e.remote.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to pull products: %w", err)
	}
	if err := e.store.ReplaceProducts(ctx, products); err != nil {
		return err
	}

	stores, err := e.remote.ListStores(ctx, e.today(), e.userID)
	if err != nil {
		return fmt.Errorf("failed to pull stores: %w", err)
	}
	if err := e.store.ReplaceStores(ctx, stores); err != nil {
		return err
	}

	recordings, err := e.remote.ListRecordings(ctx)
	if err != nil {
		return fmt.Errorf("failed to pull call recordings: %w", err)
	}
	if err := e.store.ReplaceRecordings(ctx, recordings); err != nil {
		return err
	}

	e.emit(Event{Type: EventPullCompleted, At: time.Now()})
	return nil
}

func (e *Engine) emit(event Event) {
	e.events(event)
}

// payloadID reads an id out of a decoded JSON payload, whatever shape it
// took: a remapped record.ID, a raw temp string, or a JSON number.
func payloadID(v any) record.ID {
	switch id := v.(type) {
	case record.ID:
		return id
	case string:
		return record.ID(id)
	case float64:
		return record.FromInt(int64(id))
	default:
		return ""
	}
}

// resolveID maps a temporary id through the ids resolved earlier in this
// drain cycle.
func resolveID(id record.ID, idMap map[record.ID]record.ID) record.ID {
	if mapped, ok := idMap[id]; ok {
		return mapped
	}
	return id
}

// pushBody turns a queued payload into the body a remote write sends:
// local bookkeeping fields stripped (temporary id, timestamps) and any
// temporary references remapped through ids resolved earlier this cycle.
func pushBody(payload json.RawMessage, idMap map[record.ID]record.ID) (map[string]any, error) {
	var body map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("bad queue payload: %w", err)
		}
	}
	if body == nil {
		body = make(map[string]any)
	}

	// The queue entry's target carries the id; the body never does.
	delete(body, "id")
	delete(body, "created_at")
	delete(body, "updated_at")

	for _, key := range []string{"call_schedule_id", "store_id"} {
		raw, ok := body[key].(string)
		if !ok {
			continue
		}
		id := record.ID(raw)
		if !id.IsTemp() {
			continue
		}
		body[key] = resolveID(id, idMap)
	}
	return body, nil
}
