// Package remote is the HTTP+JSON client for the field-sales API. It knows
// the endpoints, classifies failures into the error taxonomy the gateways
// and sync engine branch on, and nothing else: no caching, no queueing.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/fieldware/fieldsync/internal/record"
)

// Client talks to the remote field-sales service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *logrus.Entry
}

// NewClient creates an API client for the given base URL (e.g.
// "https://example.com/api"). token is sent as a bearer credential on every
// request; pass "" for unauthenticated use. A nil httpClient gets a
// 15-second-timeout default, and a nil logger is discarded.
func NewClient(baseURL, token string, httpClient *http.Client, logger *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		logger:  logger.WithField("component", "remote"),
	}
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// validationBody is the wire shape of a 422 response.
type validationBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// do performs one request. out, when non-nil, receives the decoded 2xx
// body. Mutating calls are NOT retried here; replay safety belongs to the
// mutation queue, not the transport.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
		}
		return nil

	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Resource: path}

	case resp.StatusCode == http.StatusUnprocessableEntity:
		var vb validationBody
		if err := json.NewDecoder(resp.Body).Decode(&vb); err != nil {
			c.logger.WithError(err).Warn("unparseable 422 body")
		}
		return &ValidationError{Message: vb.Message, Fields: vb.Errors}

	default:
		return fmt.Errorf("%s %s: server returned %s", method, path, resp.Status)
	}
}

// get performs a GET with a short capped backoff across transient failures.
// Reads are idempotent, so retrying here is safe; definitive verdicts (404,
// 422) pass through immediately.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(200*time.Millisecond),
			backoff.WithMaxInterval(2*time.Second),
		), 2),
		ctx,
	)

	return backoff.Retry(func() error {
		err := c.do(ctx, http.MethodGet, path, query, nil, out)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// ListTasks fetches the full task collection.
func (c *Client) ListTasks(ctx context.Context) ([]record.Task, error) {
	var tasks []record.Task
	if err := c.get(ctx, "/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask fetches one task.
func (c *Client) GetTask(ctx context.Context, id record.ID) (*record.Task, error) {
	var task record.Task
	if err := c.get(ctx, "/tasks/"+id.String(), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask creates a task and returns the canonical record. body may be a
// typed record or a queued raw payload.
func (c *Client) CreateTask(ctx context.Context, body any) (*record.Task, error) {
	var task record.Task
	if err := c.do(ctx, http.MethodPost, "/tasks", nil, body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask updates a task and returns the canonical record.
func (c *Client) UpdateTask(ctx context.Context, id record.ID, body any) (*record.Task, error) {
	var task record.Task
	if err := c.do(ctx, http.MethodPut, "/tasks/"+id.String(), nil, body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, id record.ID) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+id.String(), nil, nil, nil)
}

// ListStores fetches the rep's stores. A non-zero callDate and userID scope
// the result to that day's route, and the server decorates each store with
// its schedule status.
func (c *Client) ListStores(ctx context.Context, callDate record.Date, userID int64) ([]record.Store, error) {
	query := url.Values{}
	if !callDate.IsZero() {
		query.Set("call_date", callDate.String())
	}
	if userID != 0 {
		query.Set("user_id", fmt.Sprintf("%d", userID))
	}

	var stores []record.Store
	if err := c.get(ctx, "/stores", query, &stores); err != nil {
		return nil, err
	}
	return stores, nil
}

// ListProducts fetches the product catalog.
func (c *Client) ListProducts(ctx context.Context) ([]record.Product, error) {
	var products []record.Product
	if err := c.get(ctx, "/products", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetOrCreateSchedule resolves the (store, date, user) triple to its
// schedule, creating one server-side when none exists. The endpoint is
// idempotent, which is what makes queued schedule creates safe to replay.
func (c *Client) GetOrCreateSchedule(ctx context.Context, storeID record.ID, callDate record.Date, userID int64) (*record.CallSchedule, error) {
	body := map[string]any{
		"store_id":  storeID,
		"call_date": callDate.String(),
		"user_id":   userID,
	}
	var schedule record.CallSchedule
	if err := c.do(ctx, http.MethodPost, "/call-schedules/get-or-create", nil, body, &schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// ListRecordings fetches the full call recording collection.
func (c *Client) ListRecordings(ctx context.Context) ([]record.CallRecording, error) {
	var recordings []record.CallRecording
	if err := c.get(ctx, "/call-recordings", nil, &recordings); err != nil {
		return nil, err
	}
	return recordings, nil
}

// CreateRecording creates a call recording and returns the canonical
// record.
func (c *Client) CreateRecording(ctx context.Context, body any) (*record.CallRecording, error) {
	var recording record.CallRecording
	if err := c.do(ctx, http.MethodPost, "/call-recordings", nil, body, &recording); err != nil {
		return nil, err
	}
	return &recording, nil
}

// UpdateRecording updates a call recording and returns the canonical
// record.
func (c *Client) UpdateRecording(ctx context.Context, id record.ID, body any) (*record.CallRecording, error) {
	var recording record.CallRecording
	if err := c.do(ctx, http.MethodPut, "/call-recordings/"+id.String(), nil, body, &recording); err != nil {
		return nil, err
	}
	return &recording, nil
}

// DeleteRecording deletes a call recording.
func (c *Client) DeleteRecording(ctx context.Context, id record.ID) error {
	return c.do(ctx, http.MethodDelete, "/call-recordings/"+id.String(), nil, nil, nil)
}

// GetRecordingBySchedule fetches the recording attached to a schedule. The
// server answers 404 when the schedule has no recording yet, and that 404
// is authoritative.
func (c *Client) GetRecordingBySchedule(ctx context.Context, scheduleID record.ID) (*record.CallRecording, error) {
	var recording record.CallRecording
	if err := c.get(ctx, "/call-recordings/schedule/"+scheduleID.String(), nil, &recording); err != nil {
		return nil, err
	}
	return &recording, nil
}

// UpdatePostActivity sets (or clears, with nil) the post-activity note on a
// recording through its dedicated endpoint.
func (c *Client) UpdatePostActivity(ctx context.Context, id record.ID, postActivity *string) (*record.CallRecording, error) {
	body := map[string]any{"post_activity": postActivity}
	var recording record.CallRecording
	if err := c.do(ctx, http.MethodPut, "/call-recordings/"+id.String()+"/post-activity", nil, body, &recording); err != nil {
		return nil, err
	}
	return &recording, nil
}
