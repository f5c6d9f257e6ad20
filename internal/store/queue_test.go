package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fieldware/fieldsync/internal/record"
)

func TestQueuePreservesInsertionOrder(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	ops := []struct {
		op     Op
		target record.ID
	}{
		{OpCreate, "temp_1_a"},
		{OpUpdate, "temp_1_a"},
		{OpDelete, "42"},
	}
	for _, o := range ops {
		if _, err := db.Enqueue(ctx, o.op, record.ResourceTask, o.target, map[string]any{"title": "x"}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	entries, err := db.PendingMutations(ctx)
	if err != nil {
		t.Fatalf("PendingMutations: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	for i, o := range ops {
		if entries[i].Op != o.op || entries[i].TargetID != o.target {
			t.Errorf("entry %d = %s %s, want %s %s", i, entries[i].Op, entries[i].TargetID, o.op, o.target)
		}
	}
}

func TestQueuePayloadRoundTrip(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	payload := record.Task{ID: "temp_1_a", Title: "offline", Completed: true}
	if _, err := db.Enqueue(ctx, OpCreate, record.ResourceTask, payload.ID, payload); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	entries, err := db.PendingMutations(ctx)
	if err != nil {
		t.Fatalf("PendingMutations: %v", err)
	}
	var got record.Task
	if err := json.Unmarshal(entries[0].Payload, &got); err != nil {
		t.Fatalf("payload unmarshal: %v", err)
	}
	if got.Title != "offline" || !got.Completed {
		t.Errorf("payload = %+v", got)
	}
}

func TestRemoveMutation(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	id, err := db.Enqueue(ctx, OpDelete, record.ResourceTask, "42", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := db.RemoveMutation(ctx, id); err != nil {
		t.Fatalf("RemoveMutation: %v", err)
	}
	depth, err := db.QueueDepth(ctx)
	if err != nil {
		t.Fatalf("QueueDepth: %v", err)
	}
	if depth != 0 {
		t.Errorf("depth = %d, want 0", depth)
	}
}

func TestIncrementRetry(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	id, err := db.Enqueue(ctx, OpUpdate, record.ResourceTask, "42", map[string]any{"title": "x"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := db.IncrementRetry(ctx, id); err != nil {
		t.Fatalf("IncrementRetry: %v", err)
	}
	if err := db.IncrementRetry(ctx, id); err != nil {
		t.Fatalf("IncrementRetry: %v", err)
	}

	entries, err := db.PendingMutations(ctx)
	if err != nil {
		t.Fatalf("PendingMutations: %v", err)
	}
	if entries[0].Retries != 2 {
		t.Errorf("retries = %d, want 2", entries[0].Retries)
	}
}

func TestClearQueue(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := db.Enqueue(ctx, OpCreate, record.ResourceTask, record.ID("temp_1_a"), nil); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if err := db.ClearQueue(ctx); err != nil {
		t.Fatalf("ClearQueue: %v", err)
	}
	depth, _ := db.QueueDepth(ctx)
	if depth != 0 {
		t.Errorf("depth = %d, want 0", depth)
	}
}
