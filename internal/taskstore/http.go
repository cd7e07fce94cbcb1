package taskstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pmontanari/taskchat/internal/reliability"
)

const (
	maxReadRetries   = 2
	retryBackoffBase = 100 * time.Millisecond
	retryBackoffCap  = time.Second
)

// HTTPClient talks to the task CRUD backend. Reads are retried on
// retryable statuses; mutations are sent exactly once so a dispatch can
// never double-create or double-delete.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Create(ctx context.Context, userID string, req CreateRequest) (Task, error) {
	var task Task
	err := c.doJSON(ctx, http.MethodPost, "/api/tasks", userID, nil, req, &task, false)
	return task, err
}

func (c *HTTPClient) List(ctx context.Context, userID string, filter ListFilter) ([]Task, error) {
	q := url.Values{}
	if filter.Completed != nil {
		q.Set("completed", strconv.FormatBool(*filter.Completed))
	}
	if strings.TrimSpace(filter.Search) != "" {
		q.Set("search", strings.TrimSpace(filter.Search))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	var tasks []Task
	if err := c.doJSON(ctx, http.MethodGet, "/api/tasks", userID, q, nil, &tasks, true); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *HTTPClient) GetOwner(ctx context.Context, taskID int64) (string, error) {
	var out struct {
		UserID string `json:"user_id"`
	}
	path := fmt.Sprintf("/api/tasks/%d/owner", taskID)
	if err := c.doJSON(ctx, http.MethodGet, path, "", nil, nil, &out, true); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.UserID) == "" {
		return "", ErrNotFound
	}
	return out.UserID, nil
}

func (c *HTTPClient) Update(ctx context.Context, userID string, taskID int64, fields UpdateFields) (Task, error) {
	var task Task
	path := fmt.Sprintf("/api/tasks/%d", taskID)
	err := c.doJSON(ctx, http.MethodPatch, path, userID, nil, fields, &task, false)
	return task, err
}

func (c *HTTPClient) SetCompleted(ctx context.Context, userID string, taskID int64, completed bool) (Task, error) {
	var task Task
	path := fmt.Sprintf("/api/tasks/%d/completed", taskID)
	body := map[string]bool{"completed": completed}
	err := c.doJSON(ctx, http.MethodPut, path, userID, nil, body, &task, false)
	return task, err
}

func (c *HTTPClient) Delete(ctx context.Context, userID string, taskID int64) error {
	path := fmt.Sprintf("/api/tasks/%d", taskID)
	return c.doJSON(ctx, http.MethodDelete, path, userID, nil, nil, nil, false)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path, userID string, query url.Values, reqBody, out any, retryable bool) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: base url not configured", ErrUnavailable)
	}

	var payload []byte
	if reqBody != nil {
		buf, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = buf
	}

	attempts := 1
	if retryable {
		attempts = maxReadRetries + 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt-1, retryBackoffBase, retryBackoffCap)):
			}
		}

		retry, err := c.doOnce(ctx, method, path, userID, query, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || !retryable {
			return err
		}
	}
	return lastErr
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path, userID string, query url.Values, payload []byte, out any) (retry bool, err error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return false, ErrNotFound
	case res.StatusCode >= 200 && res.StatusCode < 300:
	default:
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		err := fmt.Errorf("%w: status %d: %s", ErrUnavailable, res.StatusCode, strings.TrimSpace(string(snippet)))
		return reliability.IsRetryableHTTPStatus(res.StatusCode), err
	}

	if out == nil {
		return false, nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return false, nil
}
