package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pmontanari/taskchat/internal/convo"
	"github.com/pmontanari/taskchat/internal/policy"
	"github.com/pmontanari/taskchat/internal/tools"
)

// ErrMalformedPrediction marks a classifier response that does not conform
// to the tagged-variant schema. It is never propagated as free-form data.
var ErrMalformedPrediction = errors.New("classifier returned a malformed prediction")

// Request carries one utterance plus recent conversation context to the
// classifier backend.
type Request struct {
	UserID    string
	Utterance string
	Recent    []convo.Message
}

// Prediction is the classifier's structured output: either one tool call or
// an explicit unresolved marker.
type Prediction struct {
	Tool       string
	Arguments  map[string]any
	Unresolved bool
	Reason     string
}

// Classifier turns an utterance into a structured prediction in one call.
type Classifier interface {
	Classify(ctx context.Context, req Request) (Prediction, error)
}

// Config controls classifier construction.
type Config struct {
	Mode    string
	URL     string
	Timeout time.Duration
}

// NewClassifier builds the classifier for the configured mode. A nil
// classifier (disabled mode) leaves the resolver on its keyword fallback.
func NewClassifier(cfg Config) (Classifier, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.URL) != "" {
			return NewHTTPClassifier(cfg.URL, cfg.Timeout), nil
		}
		return nil, nil
	case "http":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("classifier URL is required for http mode")
		}
		return NewHTTPClassifier(cfg.URL, cfg.Timeout), nil
	case "mock":
		return NewMockClassifier(), nil
	case "disabled":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported classifier mode %q", cfg.Mode)
	}
}

// HTTPClassifier calls a language-model-backed endpoint that returns the
// tagged variant directly.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClassifier{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
	}
}

type classifyWire struct {
	Kind      string          `json:"kind"`
	Tool      string          `json:"tool,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, req Request) (Prediction, error) {
	type contextEntry struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	body := struct {
		UserID    string         `json:"user_id"`
		Utterance string         `json:"utterance"`
		Context   []contextEntry `json:"context,omitempty"`
		Tools     []string       `json:"tools"`
	}{
		UserID: req.UserID,
		Tools: []string{
			tools.ToolCreateTask, tools.ToolListTasks, tools.ToolCompleteTask,
			tools.ToolUpdateTask, tools.ToolDeleteTask,
		},
	}
	// Text leaving the process for the model backend is scrubbed of PII.
	// The raw utterance stays local for the keyword fallback and the
	// conversation transcript.
	body.Utterance, _ = policy.RedactPII(req.Utterance)
	for _, msg := range req.Recent {
		content, _ := policy.RedactPII(msg.Content)
		body.Context = append(body.Context, contextEntry{Role: string(msg.Role), Content: content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Prediction{}, fmt.Errorf("marshal classify request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Prediction{}, fmt.Errorf("create classify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return Prediction{}, fmt.Errorf("send classify request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Prediction{}, fmt.Errorf("classifier status %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return Prediction{}, fmt.Errorf("read classify response: %w", err)
	}
	return decodePrediction(raw)
}

// decodePrediction enforces the tagged-variant schema at the boundary.
// Anything non-conforming maps to ErrMalformedPrediction rather than
// propagating free-form model output.
func decodePrediction(raw []byte) (Prediction, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var wire classifyWire
	if err := dec.Decode(&wire); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrMalformedPrediction, err)
	}

	switch strings.TrimSpace(wire.Kind) {
	case "tool_call":
		if _, ok := tools.SchemaFor(wire.Tool); !ok {
			return Prediction{}, fmt.Errorf("%w: unknown tool %q", ErrMalformedPrediction, wire.Tool)
		}
		args := map[string]any{}
		if len(wire.Arguments) > 0 {
			if err := json.Unmarshal(wire.Arguments, &args); err != nil {
				return Prediction{}, fmt.Errorf("%w: arguments not an object", ErrMalformedPrediction)
			}
		}
		return Prediction{Tool: wire.Tool, Arguments: args}, nil
	case "unresolved":
		return Prediction{Unresolved: true, Reason: strings.TrimSpace(wire.Reason)}, nil
	default:
		return Prediction{}, fmt.Errorf("%w: kind %q", ErrMalformedPrediction, wire.Kind)
	}
}
