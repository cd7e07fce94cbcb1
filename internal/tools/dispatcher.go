package tools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pmontanari/taskchat/internal/convo"
	"github.com/pmontanari/taskchat/internal/observability"
	"github.com/pmontanari/taskchat/internal/taskstore"
)

const (
	msgTaskNotVisible = "I couldn't find that task in your list."
	msgTransient      = "I couldn't complete that right now. Please try again in a moment."
)

// Result is the dispatcher's outcome for one resolved tool call.
type Result struct {
	Status  convo.CallStatus
	Message string
	Record  *convo.ToolCallRecord
}

// Dispatcher validates tool arguments, enforces user-scoped authorization
// and invokes the task store exactly once per call. It never retries: the
// store client owns retry policy for reads, and mutations stay at-most-once.
type Dispatcher struct {
	client  taskstore.Client
	timeout time.Duration
	metrics *observability.Metrics
}

func NewDispatcher(client taskstore.Client, timeout time.Duration, metrics *observability.Metrics) *Dispatcher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Dispatcher{
		client:  client,
		timeout: timeout,
		metrics: metrics,
	}
}

// Dispatch runs one tool call for the acting user. The returned Result
// always carries a user-facing message and an audit record.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, tool string, rawArgs map[string]any) Result {
	record := func(status convo.CallStatus, args map[string]any, summary string) *convo.ToolCallRecord {
		return &convo.ToolCallRecord{
			ToolName:      tool,
			Arguments:     args,
			Status:        status,
			ResultSummary: summary,
		}
	}

	args, clean, err := ValidateArgs(tool, rawArgs)
	if err != nil {
		d.metrics.ObserveToolDispatch(tool, string(convo.CallStatusFailed))
		var ve *ValidationError
		msg := "I couldn't make sense of that request."
		if errors.As(err, &ve) {
			msg = fmt.Sprintf("I couldn't do that: %s.", ve.Error())
		}
		return Result{
			Status:  convo.CallStatusFailed,
			Message: msg,
			Record:  record(convo.CallStatusFailed, rawArgs, "validation: "+err.Error()),
		}
	}

	schema, _ := SchemaFor(tool)
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if schema.RequiresTaskID {
		owner, err := d.client.GetOwner(ctx, args.TaskID)
		switch {
		case errors.Is(err, taskstore.ErrNotFound):
			d.metrics.ObserveToolDispatch(tool, string(convo.CallStatusFailed))
			return Result{
				Status:  convo.CallStatusFailed,
				Message: msgTaskNotVisible,
				Record:  record(convo.CallStatusFailed, clean, "task not found"),
			}
		case err != nil:
			d.metrics.ObserveToolDispatch(tool, string(convo.CallStatusFailed))
			return Result{
				Status:  convo.CallStatusFailed,
				Message: msgTransient,
				Record:  record(convo.CallStatusFailed, clean, "owner lookup failed: "+err.Error()),
			}
		case owner != userID:
			// Same refusal text as not-found so the reply never confirms
			// the task exists for someone else.
			log.Printf("authorization refused: user=%s tool=%s task_id=%d", userID, tool, args.TaskID)
			d.metrics.ObserveToolDispatch(tool, string(convo.CallStatusUnauthorized))
			return Result{
				Status:  convo.CallStatusUnauthorized,
				Message: msgTaskNotVisible,
				Record:  record(convo.CallStatusUnauthorized, clean, "owner mismatch"),
			}
		}
	}

	message, summary, err := d.invoke(ctx, userID, tool, args)
	if err != nil {
		d.metrics.ObserveToolDispatch(tool, string(convo.CallStatusFailed))
		if errors.Is(err, taskstore.ErrNotFound) {
			return Result{
				Status:  convo.CallStatusFailed,
				Message: msgTaskNotVisible,
				Record:  record(convo.CallStatusFailed, clean, "task not found"),
			}
		}
		return Result{
			Status:  convo.CallStatusFailed,
			Message: msgTransient,
			Record:  record(convo.CallStatusFailed, clean, "store call failed: "+err.Error()),
		}
	}

	d.metrics.ObserveToolDispatch(tool, string(convo.CallStatusSucceeded))
	return Result{
		Status:  convo.CallStatusSucceeded,
		Message: message,
		Record:  record(convo.CallStatusSucceeded, clean, summary),
	}
}

// invoke performs the single task store call for the tool and projects the
// outcome into the user-facing confirmation and the audit summary.
func (d *Dispatcher) invoke(ctx context.Context, userID, tool string, args Args) (message, summary string, err error) {
	switch tool {
	case ToolCreateTask:
		task, err := d.client.Create(ctx, userID, taskstore.CreateRequest{
			Title:       args.Title,
			Description: args.Description,
			Priority:    args.Priority,
			Tags:        args.Tags,
		})
		if err != nil {
			return "", "", err
		}
		return fmt.Sprintf("Created task #%d: %s", task.ID, task.Title),
			fmt.Sprintf("created task %d", task.ID), nil

	case ToolListTasks:
		var completed *bool
		if args.Completed != nil {
			completed = args.Completed
		}
		tasks, err := d.client.List(ctx, userID, taskstore.ListFilter{
			Completed: completed,
			Search:    args.Search,
			Limit:     args.Limit,
		})
		if err != nil {
			return "", "", err
		}
		return renderTaskList(tasks), fmt.Sprintf("listed %d task(s)", len(tasks)), nil

	case ToolCompleteTask:
		completed := true
		if args.Completed != nil {
			completed = *args.Completed
		}
		task, err := d.client.SetCompleted(ctx, userID, args.TaskID, completed)
		if err != nil {
			return "", "", err
		}
		if completed {
			return fmt.Sprintf("Marked task #%d as done: %s", task.ID, task.Title),
				fmt.Sprintf("completed task %d", task.ID), nil
		}
		return fmt.Sprintf("Reopened task #%d: %s", task.ID, task.Title),
			fmt.Sprintf("reopened task %d", task.ID), nil

	case ToolUpdateTask:
		fields := taskstore.UpdateFields{Tags: args.Tags}
		if args.Title != "" {
			fields.Title = &args.Title
		}
		if args.Description != "" {
			fields.Description = &args.Description
		}
		if args.Priority != "" {
			fields.Priority = &args.Priority
		}
		task, err := d.client.Update(ctx, userID, args.TaskID, fields)
		if err != nil {
			return "", "", err
		}
		return fmt.Sprintf("Updated task #%d: %s", task.ID, task.Title),
			fmt.Sprintf("updated task %d", task.ID), nil

	case ToolDeleteTask:
		if err := d.client.Delete(ctx, userID, args.TaskID); err != nil {
			return "", "", err
		}
		return fmt.Sprintf("Deleted task #%d.", args.TaskID),
			fmt.Sprintf("deleted task %d", args.TaskID), nil

	default:
		return "", "", fmt.Errorf("unknown tool %q", tool)
	}
}

func renderTaskList(tasks []taskstore.Task) string {
	if len(tasks) == 0 {
		return "You have no matching tasks."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d task(s):", len(tasks))
	for _, task := range tasks {
		mark := " "
		if task.Completed {
			mark = "x"
		}
		fmt.Fprintf(&b, "\n- [%s] #%d %s", mark, task.ID, task.Title)
	}
	return b.String()
}
