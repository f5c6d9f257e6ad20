package gateway

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/fieldware/fieldsync/internal/connectivity"
	"github.com/fieldware/fieldsync/internal/record"
	"github.com/fieldware/fieldsync/internal/remote"
	"github.com/fieldware/fieldsync/internal/store"
)

const testBase = "https://api.test"

type env struct {
	gateways *Gateways
	db       *store.DB
	monitor  *connectivity.Monitor
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	monitor := connectivity.NewMonitor(nil, 0)

	gws, err := New(Deps{
		Store:  db,
		Remote: remote.NewClient(testBase, "", httpClient, nil),
		Oracle: monitor,
		IDs:    record.StaticIDGenerator("temp_1_a", "temp_2_b", "temp_3_c", "temp_4_d"),
		Now:    func() time.Time { return time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &env{gateways: gws, db: db, monitor: monitor}
}

func (e *env) queueDepth(t *testing.T) int {
	t.Helper()
	depth, err := e.db.QueueDepth(context.Background())
	if err != nil {
		t.Fatalf("QueueDepth: %v", err)
	}
	return depth
}

func TestCreateTaskOffline(t *testing.T) {
	e := newEnv(t)
	e.monitor.Set(false)
	ctx := context.Background()

	created, err := e.gateways.Tasks.Create(ctx, record.Task{Title: "Visit Mega Mart"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created.ID.IsTemp() {
		t.Errorf("offline create should mint a temp id, got %q", created.ID)
	}

	local, err := e.db.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("local copy missing: %v", err)
	}
	if local.Title != "Visit Mega Mart" {
		t.Errorf("local = %+v", local)
	}
	if e.queueDepth(t) != 1 {
		t.Errorf("queue depth = %d, want 1", e.queueDepth(t))
	}
}

func TestCreateTaskOnline(t *testing.T) {
	e := newEnv(t)
	e.monitor.Set(true)
	ctx := context.Background()

	httpmock.RegisterResponder("POST", testBase+"/tasks",
		httpmock.NewStringResponder(201, `{"id": 42, "title": "Visit Mega Mart", "completed": false}`))

	created, err := e.gateways.Tasks.Create(ctx, record.Task{Title: "Visit Mega Mart"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "42" {
		t.Errorf("ID = %q, want canonical 42", created.ID)
	}
	if e.queueDepth(t) != 0 {
		t.Errorf("online create must not queue, depth = %d", e.queueDepth(t))
	}
	if _, err := e.db.GetTask(ctx, "42"); err != nil {
		t.Errorf("canonical record not cached: %v", err)
	}
}

func TestCreateTaskFallsBackOnTransportError(t *testing.T) {
	e := newEnv(t)
	e.monitor.Set(true)
	ctx := context.Background()

	// No responder registered: the request fails at the transport.
	created, err := e.gateways.Tasks.Create(ctx, record.Task{Title: "Visit Mega Mart"})
	if err != nil {
		t.Fatalf("Create should fall back, got %v", err)
	}
	if !created.ID.IsTemp() {
		t.Errorf("fallback should mint a temp id, got %q", created.ID)
	}
	if e.queueDepth(t) != 1 {
		t.Errorf("queue depth = %d, want 1", e.queueDepth(t))
	}
}

func TestCreateTaskValidationNeverQueues(t *testing.T) {
	e := newEnv(t)
	e.monitor.Set(true)
	ctx := context.Background()

	httpmock.RegisterResponder("POST", testBase+"/tasks",
		httpmock.NewStringResponder(422, `{"message": "The title field is required.", "errors": {"title": ["The title field is required."]}}`))

	_, err := e.gateways.Tasks.Create(ctx, record.Task{})
	if !remote.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}
	if e.queueDepth(t) != 0 {
		t.Errorf("validation failure must not queue, depth = %d", e.queueDepth(t))
	}
	tasks, _ := e.db.ListTasks(ctx)
	if len(tasks) != 0 {
		t.Errorf("validation failure must not persist locally, got %+v", tasks)
	}
}

func TestGetTask404Authoritative(t *testing.T) {
	e := newEnv(t)
	e.monitor.Set(true)
	ctx := context.Background()

	// Stale local copy of a record the server has deleted.
	if err := e.db.SaveTask(ctx, &record.Task{ID: "42", Title: "stale"}); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	httpmock.RegisterResponder("GET", testBase+"/tasks/42",
		httpmock.NewStringResponder(404, `{"message":"not found"}`))

	_, err := e.gateways.Tasks.Get(ctx, "42")
	if !remote.IsNotFound(err) {
		t.Errorf("server 404 must win over the stale copy, got %v", err)
	}
}

func TestListTasksOfflineServesCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.monitor.Set(true)
	httpmock.RegisterResponder("GET", testBase+"/tasks",
		httpmock.NewStringResponder(200, `[{"id": 1, "title": "cached"}]`))
	if _, err := e.gateways.Tasks.List(ctx); err != nil {
		t.Fatalf("online List: %v", err)
	}

	e.monitor.Set(false)
	tasks, err := e.gateways.Tasks.List(ctx)
	if err != nil {
		t.Fatalf("offline List: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "cached" {
		t.Errorf("offline list = %+v", tasks)
	}
}

func TestDeleteTaskOnline404IsSuccess(t *testing.T) {
	e := newEnv(t)
	e.monitor.Set(true)
	ctx := context.Background()

	if err := e.db.SaveTask(ctx, &record.Task{ID: "42", Title: "gone remotely"}); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	httpmock.RegisterResponder("DELETE", testBase+"/tasks/42",
		httpmock.NewStringResponder(404, `{"message":"not found"}`))

	if err := e.gateways.Tasks.Delete(ctx, "42"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := e.db.GetTask(ctx, "42"); err == nil {
		t.Error("local copy should be removed")
	}
	if e.queueDepth(t) != 0 {
		t.Errorf("404 delete must not queue, depth = %d", e.queueDepth(t))
	}
}

func TestDeleteTaskOfflineQueues(t *testing.T) {
	e := newEnv(t)
	e.monitor.Set(false)
	ctx := context.Background()

	if err := e.db.SaveTask(ctx, &record.Task{ID: "42", Title: "x"}); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	if err := e.gateways.Tasks.Delete(ctx, "42"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := e.db.GetTask(ctx, "42"); err == nil {
		t.Error("local copy should be removed immediately")
	}
	if e.queueDepth(t) != 1 {
		t.Errorf("queue depth = %d, want 1", e.queueDepth(t))
	}
}

func TestScheduleGetOrCreateOfflineIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.monitor.Set(false)
	ctx := context.Background()
	date, _ := record.ParseDate("2026-08-29")

	first, err := e.gateways.Schedules.GetOrCreate(ctx, "7", date, 3)
	if err != nil {
		t.Fatalf("first GetOrCreate: %v", err)
	}
	if !first.ID.IsTemp() {
		t.Fatalf("offline schedule should be temp, got %q", first.ID)
	}

	second, err := e.gateways.Schedules.GetOrCreate(ctx, "7", date, 3)
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("same triple should resolve to same schedule: %q vs %q", second.ID, first.ID)
	}
	if e.queueDepth(t) != 1 {
		t.Errorf("queue depth = %d, want 1 (no duplicate create)", e.queueDepth(t))
	}
}

func TestRecordingCreateWithTempParentStaysLocal(t *testing.T) {
	e := newEnv(t)
	e.monitor.Set(true)
	ctx := context.Background()

	// Online, but the parent schedule has not synced yet. The recording
	// must not hit the server with a temp schedule id.
	created, err := e.gateways.Recordings.Create(ctx, record.CallRecording{
		CallScheduleID: "temp_9_z",
		Products:       record.ProductLines{{ProductID: 3, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created.ID.IsTemp() {
		t.Errorf("recording should stay local, got id %q", created.ID)
	}
	if e.queueDepth(t) != 1 {
		t.Errorf("queue depth = %d, want 1", e.queueDepth(t))
	}
	if httpmock.GetTotalCallCount() != 0 {
		t.Errorf("no request should reach the server, got %d", httpmock.GetTotalCallCount())
	}
}

func TestUpdatePostActivityOfflineQueuesPartial(t *testing.T) {
	e := newEnv(t)
	e.monitor.Set(false)
	ctx := context.Background()

	rec := &record.CallRecording{
		ID:             "9",
		CallScheduleID: "5",
		Products:       record.ProductLines{{ProductID: 3, Quantity: 1}},
	}
	if err := e.db.SaveRecording(ctx, rec); err != nil {
		t.Fatalf("SaveRecording: %v", err)
	}

	notes := "restocked shelf"
	updated, err := e.gateways.Recordings.UpdatePostActivity(ctx, "9", &notes)
	if err != nil {
		t.Fatalf("UpdatePostActivity: %v", err)
	}
	if updated.PostActivity == nil || *updated.PostActivity != notes {
		t.Errorf("updated = %+v", updated)
	}

	entries, err := e.db.PendingMutations(ctx)
	if err != nil {
		t.Fatalf("PendingMutations: %v", err)
	}
	if len(entries) != 1 || entries[0].Op != store.OpUpdate || entries[0].Resource != record.ResourceCallRecording {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestGetBySchedule404Authoritative(t *testing.T) {
	e := newEnv(t)
	e.monitor.Set(true)
	ctx := context.Background()

	stale := &record.CallRecording{
		ID:             "9",
		CallScheduleID: "5",
		Products:       record.ProductLines{{ProductID: 3, Quantity: 1}},
	}
	if err := e.db.SaveRecording(ctx, stale); err != nil {
		t.Fatalf("SaveRecording: %v", err)
	}
	httpmock.RegisterResponder("GET", testBase+"/call-recordings/schedule/5",
		httpmock.NewStringResponder(404, `{"message":"not found"}`))

	_, err := e.gateways.Recordings.GetBySchedule(ctx, "5")
	if !remote.IsNotFound(err) {
		t.Errorf("server 404 must win over the stale copy, got %v", err)
	}
}
