package gateway

import (
	"context"
	"fmt"

	"github.com/fieldware/fieldsync/internal/record"
	"github.com/fieldware/fieldsync/internal/remote"
	"github.com/fieldware/fieldsync/internal/store"
)

// TaskGateway is the connectivity-transparent CRUD surface for tasks.
type TaskGateway struct {
	*base
}

// List returns all tasks: the server's collection when reachable (also
// refreshing the local cache), the cached collection otherwise.
func (g *TaskGateway) List(ctx context.Context) ([]record.Task, error) {
	if g.oracle.Online() {
		tasks, err := g.remote.ListTasks(ctx)
		if err == nil {
			if err := g.store.ReplaceTasks(ctx, tasks); err != nil {
				return nil, err
			}
			return tasks, nil
		}
		if !g.fellBack("list tasks", err) {
			return nil, err
		}
	}
	return g.store.ListTasks(ctx)
}

// Get returns one task. A server 404 is authoritative and propagates even
// when a stale local copy exists.
func (g *TaskGateway) Get(ctx context.Context, id record.ID) (*record.Task, error) {
	if g.oracle.Online() && !id.IsTemp() {
		task, err := g.remote.GetTask(ctx, id)
		if err == nil {
			if err := g.store.SaveTask(ctx, task); err != nil {
				return nil, err
			}
			return task, nil
		}
		if !g.fellBack("get task", err) {
			return nil, err
		}
	}
	return g.store.GetTask(ctx, id)
}

// Create makes a new task. Online it returns the server's canonical record;
// offline (or when the live write fails on connectivity) it assigns a
// temporary id, persists locally, queues the create, and returns the
// optimistic record.
func (g *TaskGateway) Create(ctx context.Context, task record.Task) (*record.Task, error) {
	if g.oracle.Online() {
		created, err := g.remote.CreateTask(ctx, createTaskBody(task))
		if err == nil {
			if err := g.store.SaveTask(ctx, created); err != nil {
				return nil, err
			}
			return created, nil
		}
		if !g.fellBack("create task", err) {
			return nil, err
		}
	}

	task.ID = g.ids.TempID()
	task.CreatedAt = g.now()
	task.UpdatedAt = g.now()
	if err := g.store.SaveTask(ctx, &task); err != nil {
		return nil, err
	}
	if _, err := g.store.Enqueue(ctx, store.OpCreate, record.ResourceTask, task.ID, task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Update rewrites a task. Updates against temporary ids always take the
// offline path; the sync engine resolves the id once the create lands.
func (g *TaskGateway) Update(ctx context.Context, id record.ID, task record.Task) (*record.Task, error) {
	if g.oracle.Online() && !id.IsTemp() {
		updated, err := g.remote.UpdateTask(ctx, id, createTaskBody(task))
		if err == nil {
			if err := g.store.SaveTask(ctx, updated); err != nil {
				return nil, err
			}
			return updated, nil
		}
		if !g.fellBack("update task", err) {
			return nil, err
		}
	}

	existing, err := g.store.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cannot update task %s: %w", id, err)
	}
	task.ID = id
	task.CreatedAt = existing.CreatedAt
	task.UpdatedAt = g.now()
	if err := g.store.SaveTask(ctx, &task); err != nil {
		return nil, err
	}
	if _, err := g.store.Enqueue(ctx, store.OpUpdate, record.ResourceTask, id, task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Delete removes a task. A server 404 counts as success: the record is
// already gone. The local copy is removed either way.
func (g *TaskGateway) Delete(ctx context.Context, id record.ID) error {
	if g.oracle.Online() && !id.IsTemp() {
		err := g.remote.DeleteTask(ctx, id)
		if err == nil || remote.IsNotFound(err) {
			return g.store.DeleteTask(ctx, id)
		}
		if !g.fellBack("delete task", err) {
			return err
		}
	}

	if err := g.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	if _, err := g.store.Enqueue(ctx, store.OpDelete, record.ResourceTask, id, nil); err != nil {
		return err
	}
	return nil
}

// createTaskBody is the payload a task write sends: user fields only, no
// identifiers or timestamps.
func createTaskBody(task record.Task) map[string]any {
	return map[string]any{
		"title":       task.Title,
		"description": task.Description,
		"completed":   task.Completed,
	}
}
