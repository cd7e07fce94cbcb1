package taskstore

import (
	"context"
	"errors"
)

// ErrNotFound covers both genuinely missing tasks and tasks owned by another
// user: the backend never distinguishes the two in its responses.
var ErrNotFound = errors.New("task not found")

// ErrUnavailable signals a transport or backend failure.
var ErrUnavailable = errors.New("task store unavailable")

// Client is the user-scoped accessor for the five task primitives. Every
// call takes the acting user id explicitly; there is no ambient identity.
type Client interface {
	Create(ctx context.Context, userID string, req CreateRequest) (Task, error)
	List(ctx context.Context, userID string, filter ListFilter) ([]Task, error)
	// GetOwner resolves a task's owning user without reading task content.
	GetOwner(ctx context.Context, taskID int64) (string, error)
	Update(ctx context.Context, userID string, taskID int64, fields UpdateFields) (Task, error)
	SetCompleted(ctx context.Context, userID string, taskID int64, completed bool) (Task, error)
	Delete(ctx context.Context, userID string, taskID int64) error
}
