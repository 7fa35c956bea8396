package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"timetrack/internal/model"
)

// ErrAuth marks a rejected credential. Retrying with the same credential
// cannot succeed, so callers short-circuit instead of backing off.
var ErrAuth = errors.New("credential rejected")

// RequestError is a non-auth server rejection (validation, conflict,
// not-found), terminal for the attempt that caused it.
type RequestError struct {
	Status  int
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

// IsTransient reports whether err is worth feeding into the poll/backoff
// path: network failures and server 5xx. Everything else is surfaced.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrAuth) {
		return false
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Status >= 500
	}
	return true
}

// APIClient talks to the timer backend over its REST surface.
type APIClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type loginResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

type userEnvelope struct {
	User model.User `json:"user"`
}

type entryEnvelope struct {
	TimeEntry *model.TimeEntry `json:"timeEntry"`
}

type entriesEnvelope struct {
	TimeEntries []model.TimeEntry `json:"timeEntries"`
}

type projectsEnvelope struct {
	Projects []model.Project `json:"projects"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Login exchanges credentials for a bearer token and stores it on the client.
func (c *APIClient) Login(ctx context.Context, email, password string) (*model.User, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp.User, nil
}

// Token returns the current bearer credential.
func (c *APIClient) Token() string {
	return c.token
}

// Me fetches the authenticated user, including the server-side idle
// threshold and default hourly rate.
func (c *APIClient) Me(ctx context.Context) (*model.User, error) {
	var resp userEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Current returns the running entry or nil. Cheap enough for the poll path.
func (c *APIClient) Current(ctx context.Context) (*model.TimeEntry, error) {
	var resp entryEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/time-entries/current", nil, &resp); err != nil {
		return nil, err
	}
	return resp.TimeEntry, nil
}

func (c *APIClient) Start(ctx context.Context, description string, projectID, taskID *string) (*model.TimeEntry, error) {
	var resp entryEnvelope
	err := c.do(ctx, http.MethodPost, "/api/time-entries/start", map[string]interface{}{
		"description": description,
		"projectId":   projectID,
		"taskId":      taskID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.TimeEntry, nil
}

func (c *APIClient) Stop(ctx context.Context, entryID string) (*model.TimeEntry, error) {
	var resp entryEnvelope
	err := c.do(ctx, http.MethodPost, "/api/time-entries/"+entryID+"/stop", map[string]string{}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.TimeEntry, nil
}

func (c *APIClient) RecentEntries(ctx context.Context, limit int) ([]model.TimeEntry, error) {
	var resp entriesEnvelope
	path := fmt.Sprintf("/api/time-entries?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.TimeEntries, nil
}

func (c *APIClient) Projects(ctx context.Context) ([]model.Project, error) {
	var resp projectsEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/projects", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrAuth
	}
	if resp.StatusCode >= 400 {
		var envelope errorEnvelope
		if decodeErr := json.NewDecoder(resp.Body).Decode(&envelope); decodeErr != nil {
			return &RequestError{Status: resp.StatusCode, Code: "unknown", Message: resp.Status}
		}
		return &RequestError{
			Status:  resp.StatusCode,
			Code:    envelope.Error.Code,
			Message: envelope.Error.Message,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
