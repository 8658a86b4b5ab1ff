// Package client is the JSON HTTP client for the humangate server, used by
// the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return &apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type AssignmentTarget struct {
	PersonID string `json:"personId,omitempty"`
	GroupID  string `json:"groupId,omitempty"`
}

type SLA struct {
	DeadlineIn string            `json:"deadlineIn,omitempty"`
	WarnBefore string            `json:"warnBefore,omitempty"`
	OnBreach   string            `json:"onBreach,omitempty"`
	EscalateTo *AssignmentTarget `json:"escalateTo,omitempty"`
}

type CreateTaskRequest struct {
	ProcessID   string            `json:"processId"`
	RunID       string            `json:"runId"`
	Type        string            `json:"type,omitempty"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Assignment  AssignmentTarget  `json:"assignment"`
	Strategy    string            `json:"strategy,omitempty"`
	Priority    string            `json:"priority,omitempty"`
	SLA         *SLA              `json:"sla,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
}

type Task struct {
	ID           string           `json:"id"`
	ProcessID    string           `json:"processId"`
	RunID        string           `json:"runId"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	Assignment   AssignmentTarget `json:"assignment"`
	AssigneeID   string           `json:"assigneeId,omitempty"`
	Priority     string           `json:"priority,omitempty"`
	Status       string           `json:"status"`
	SLAState     string           `json:"slaState,omitempty"`
	Data         map[string]any   `json:"data,omitempty"`
	CompletedBy  string           `json:"completedBy,omitempty"`
	CancelReason string           `json:"cancelReason,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	DueAt        *time.Time       `json:"dueAt,omitempty"`
}

type TaskList struct {
	Tasks []*Task `json:"tasks"`
	Total int     `json:"total"`
}

func (c *Client) CreateTask(ctx context.Context, req *CreateTaskRequest) (*Task, error) {
	var t Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", nil, req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) ListTasks(ctx context.Context, status, assigneeID string) (*TaskList, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if assigneeID != "" {
		q.Set("assigneeId", assigneeID)
	}
	var list TaskList
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks", q, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+id, nil, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CompleteTask(ctx context.Context, id string, data map[string]any, completedBy string) (*Task, error) {
	var t Task
	body := map[string]any{"data": data, "completedBy": completedBy}
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks/"+id+"/complete", nil, body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CancelTask(ctx context.Context, id, reason, cancelledBy string) (*Task, error) {
	var t Task
	body := map[string]string{"reason": reason, "cancelledBy": cancelledBy}
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks/"+id+"/cancel", nil, body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Assignable  bool      `json:"assignable"`
	Strategy    string    `json:"strategy"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

type GroupList struct {
	Groups []*Group `json:"groups"`
}

func (c *Client) CreateGroup(ctx context.Context, name, strategy string, members []string) (*Group, error) {
	var g Group
	body := map[string]any{"name": name, "strategy": strategy, "members": members}
	if err := c.do(ctx, http.MethodPost, "/api/v1/groups", nil, body, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) ListGroups(ctx context.Context) (*GroupList, error) {
	var list GroupList
	if err := c.do(ctx, http.MethodGet, "/api/v1/groups", nil, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) AddGroupMember(ctx context.Context, groupID, personID string) error {
	body := map[string]string{"personId": personID}
	return c.do(ctx, http.MethodPost, "/api/v1/groups/"+groupID+"/members", nil, body, nil)
}

func (c *Client) RemoveGroupMember(ctx context.Context, groupID, personID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/groups/"+groupID+"/members/"+personID, nil, nil, nil)
}
