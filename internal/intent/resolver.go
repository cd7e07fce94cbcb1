package intent

import (
	"context"
	"time"

	"github.com/pmontanari/taskchat/internal/convo"
	"github.com/pmontanari/taskchat/internal/observability"
	"github.com/pmontanari/taskchat/internal/tools"
)

const (
	clarifyWhichTask = "Which task do you mean? Tell me its number, for example \"task 7\"."
	clarifyGeneric   = "I didn't catch that. I can add, list, update, complete or delete tasks. What would you like to do?"
)

// Resolver turns one utterance into a Decision, trying the cheapest and
// most certain path first: fast-path patterns, then the structured
// classifier, then the keyword fallback.
type Resolver struct {
	classifier Classifier
	timeout    time.Duration
	metrics    *observability.Metrics
}

func NewResolver(classifier Classifier, timeout time.Duration, metrics *observability.Metrics) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		classifier: classifier,
		timeout:    timeout,
		metrics:    metrics,
	}
}

// Resolve never returns an error: every failure mode collapses into an
// Unresolved decision so the caller always has a reply to give.
func (r *Resolver) Resolve(ctx context.Context, userID, utterance string, recent []convo.Message) Decision {
	in := normalizeUtterance(utterance)
	if in == "" {
		return Unresolved("empty_utterance", clarifyGeneric)
	}

	if decision, ok := matchFastPath(in); ok {
		return decision
	}

	if r.classifier != nil {
		classifyCtx, cancel := context.WithTimeout(ctx, r.timeout)
		pred, err := r.classifier.Classify(classifyCtx, Request{
			UserID:    userID,
			Utterance: utterance,
			Recent:    recent,
		})
		cancel()

		switch {
		case err != nil:
			r.metrics.ObserveClassifierCall("error")
		case pred.Unresolved:
			r.metrics.ObserveClassifierCall("unresolved")
		default:
			r.metrics.ObserveClassifierCall("tool_call")
			return r.finalizeToolCall(pred.Tool, pred.Arguments)
		}
	}

	if tool, args, ok := matchKeywords(in); ok {
		r.metrics.ObserveClassifierFallback()
		return r.finalizeToolCall(tool, args)
	}

	return Unresolved("no_intent_matched", clarifyGeneric)
}

// finalizeToolCall guards the one edge the schema cannot express on its
// own: a mutating tool referenced by description instead of id resolves to
// a clarification, never a guessed id.
func (r *Resolver) finalizeToolCall(tool string, args map[string]any) Decision {
	schema, ok := tools.SchemaFor(tool)
	if !ok {
		return Unresolved("unknown_tool", clarifyGeneric)
	}
	if schema.RequiresTaskID {
		if args == nil {
			return Unresolved("missing_task_id", clarifyWhichTask)
		}
		if v, present := args["task_id"]; !present || v == nil {
			return Unresolved("missing_task_id", clarifyWhichTask)
		}
	}
	return ToolCall(tool, args)
}
