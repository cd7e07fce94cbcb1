package taskstore

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryClient is a self-contained task backend for local/dev use and
// tests. It enforces the same per-user isolation the real backend does.
type InMemoryClient struct {
	mu     sync.RWMutex
	nextID int64
	tasks  map[int64]Task
}

func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{tasks: make(map[int64]Task)}
}

func (c *InMemoryClient) Create(_ context.Context, userID string, req CreateRequest) (Task, error) {
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	task := Task{
		ID:          c.nextID,
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Tags:        append([]string(nil), req.Tags...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.tasks[task.ID] = task
	return task, nil
}

func (c *InMemoryClient) List(_ context.Context, userID string, filter ListFilter) ([]Task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Task, 0, 8)
	for id := int64(1); id <= c.nextID; id++ {
		task, ok := c.tasks[id]
		if !ok || task.UserID != userID {
			continue
		}
		if filter.Completed != nil && task.Completed != *filter.Completed {
			continue
		}
		if s := strings.ToLower(strings.TrimSpace(filter.Search)); s != "" {
			if !strings.Contains(strings.ToLower(task.Title), s) &&
				!strings.Contains(strings.ToLower(task.Description), s) {
				continue
			}
		}
		out = append(out, task)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (c *InMemoryClient) GetOwner(_ context.Context, taskID int64) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	task, ok := c.tasks[taskID]
	if !ok {
		return "", ErrNotFound
	}
	return task.UserID, nil
}

func (c *InMemoryClient) Update(_ context.Context, userID string, taskID int64, fields UpdateFields) (Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.tasks[taskID]
	if !ok || task.UserID != userID {
		return Task{}, ErrNotFound
	}
	if fields.Title != nil {
		task.Title = *fields.Title
	}
	if fields.Description != nil {
		task.Description = *fields.Description
	}
	if fields.Priority != nil {
		task.Priority = *fields.Priority
	}
	if fields.Tags != nil {
		task.Tags = append([]string(nil), fields.Tags...)
	}
	task.UpdatedAt = time.Now().UTC()
	c.tasks[taskID] = task
	return task, nil
}

func (c *InMemoryClient) SetCompleted(_ context.Context, userID string, taskID int64, completed bool) (Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.tasks[taskID]
	if !ok || task.UserID != userID {
		return Task{}, ErrNotFound
	}
	task.Completed = completed
	task.UpdatedAt = time.Now().UTC()
	c.tasks[taskID] = task
	return task, nil
}

func (c *InMemoryClient) Delete(_ context.Context, userID string, taskID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.tasks[taskID]
	if !ok || task.UserID != userID {
		return ErrNotFound
	}
	delete(c.tasks, taskID)
	return nil
}
