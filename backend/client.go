// Package backend is a client for the project backend that owns tasks,
// members and LLM generation.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"hackboard/domain"
)

const (
	defaultTimeout   = 30 * time.Second
	maxErrorBodySize = 4 * 1024
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Is maps conflict statuses onto domain.ErrVersionConflict and 404 onto
// domain.ErrNotFound.
func (e *StatusError) Is(target error) bool {
	switch target {
	case domain.ErrVersionConflict:
		return e.StatusCode == http.StatusConflict || e.StatusCode == http.StatusPreconditionFailed
	case domain.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Client wraps http.Client with helpers for the backend's JSON endpoints.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
	Logger  *log.Logger
}

// New creates a Client for baseURL. An empty bearer sends no Authorization
// header.
func New(baseURL, bearer string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Bearer:  bearer,
		HTTP:    &http.Client{Timeout: defaultTimeout},
		Logger:  log.StandardLogger(),
	}
}

// FetchTasks returns the full task list of a project.
func (c *Client) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/tasks", nil, nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

// FetchMembers returns the members of a project.
func (c *Client) FetchMembers(ctx context.Context, projectID string) ([]domain.Member, error) {
	var members []domain.Member
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/members", nil, nil, &members); err != nil {
		return nil, err
	}
	if members == nil {
		members = []domain.Member{}
	}
	return members, nil
}

// PatchTask sends a partial update. The project id is not part of the
// backend's task route but keeps the signature shared with other stores.
func (c *Client) PatchTask(ctx context.Context, _ string, taskID string, patch domain.TaskPatch) error {
	if patch.Empty() {
		return nil
	}
	hdr := http.Header{}
	hdr.Set("Idempotency-Key", uuid.NewString())
	if patch.IfMatch != "" {
		hdr.Set("If-Match", patch.IfMatch)
	}
	return c.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(taskID), hdr, patch.Fields(), nil)
}

// TriggerGeneration asks the backend to generate the project's task backlog.
func (c *Client) TriggerGeneration(ctx context.Context, projectID string) error {
	hdr := http.Header{}
	hdr.Set("Idempotency-Key", "generate:"+projectID)
	return c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(projectID)+"/generate", hdr, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, hdr http.Header, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger().WithFields(log.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"total_ms": float64(time.Since(start)) / float64(time.Millisecond),
	}).Debug("backend.request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) logger() *log.Logger {
	if c.Logger == nil {
		return log.StandardLogger()
	}
	return c.Logger
}
