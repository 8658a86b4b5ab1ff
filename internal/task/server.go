package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/humangate/humangate/internal/notification"
	"github.com/humangate/humangate/internal/signalbus"
	"github.com/humangate/humangate/pkg/cerr"
	"github.com/humangate/humangate/pkg/duration"
)

// Resolver is the slice of assignment resolution the HTTP surface needs.
// Declared here to avoid a dependency cycle with the assignment package.
type Resolver interface {
	ResolvePerson(ctx context.Context, target AssignmentTarget, override string) (string, error)
}

// Server exposes the task store over JSON HTTP.
type Server struct {
	repo     Repository
	resolver Resolver
	bus      *signalbus.Bus
	notifier notification.Notifier
}

func NewServer(repo Repository, resolver Resolver, bus *signalbus.Bus, notifier notification.Notifier) *Server {
	return &Server{
		repo:     repo,
		resolver: resolver,
		bus:      bus,
		notifier: notifier,
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/{taskID}", s.handleGet)
		r.Post("/{taskID}/complete", s.handleComplete)
		r.Post("/{taskID}/cancel", s.handleCancel)
	})
}

type assignmentTargetRequest struct {
	PersonID string `json:"personId,omitempty"`
	GroupID  string `json:"groupId,omitempty"`
}

type escalationStepRequest struct {
	After   string                   `json:"after"`
	Action  string                   `json:"action"`
	Target  *assignmentTargetRequest `json:"target,omitempty"`
	Message string                   `json:"message,omitempty"`
}

type slaRequest struct {
	DeadlineIn string                   `json:"deadlineIn,omitempty"`
	DeadlineAt *time.Time               `json:"deadlineAt,omitempty"`
	WarnBefore string                   `json:"warnBefore,omitempty"`
	OnBreach   string                   `json:"onBreach,omitempty"`
	EscalateTo *assignmentTargetRequest `json:"escalateTo,omitempty"`
	Chain      []escalationStepRequest  `json:"chain,omitempty"`
}

type createTaskRequest struct {
	TenantID    string                  `json:"tenantId,omitempty"`
	ProcessID   string                  `json:"processId"`
	RunID       string                  `json:"runId"`
	Type        string                  `json:"type,omitempty"`
	Title       string                  `json:"title"`
	Description string                  `json:"description,omitempty"`
	Form        FormSchema              `json:"form,omitempty"`
	Assignment  assignmentTargetRequest `json:"assignment"`
	Strategy    string                  `json:"strategy,omitempty"`
	Priority    string                  `json:"priority,omitempty"`
	Context     map[string]string       `json:"context,omitempty"`
	Metadata    map[string]string       `json:"metadata,omitempty"`
	SLA         *slaRequest             `json:"sla,omitempty"`
}

type taskResponse struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenantId,omitempty"`
	ProcessID   string            `json:"processId"`
	RunID       string            `json:"runId"`
	Type        string            `json:"type,omitempty"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Form        FormSchema        `json:"form,omitempty"`
	Assignment  AssignmentTarget  `json:"assignment"`
	AssigneeID  string            `json:"assigneeId,omitempty"`
	Priority    Priority          `json:"priority,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Status      Status            `json:"status"`
	SLAState    string            `json:"slaState,omitempty"`
	Data        map[string]any    `json:"data,omitempty"`
	CompletedBy string            `json:"completedBy,omitempty"`
	CancelReason string           `json:"cancelReason,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	DueAt       *time.Time        `json:"dueAt,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

func toResponse(t *Task, now time.Time) *taskResponse {
	resp := &taskResponse{
		ID:           t.ID,
		TenantID:     t.TenantID,
		ProcessID:    t.ProcessID,
		RunID:        t.RunID,
		Type:         t.Type,
		Title:        t.Title,
		Description:  t.Description,
		Form:         t.Form,
		Assignment:   t.Assignment,
		AssigneeID:   t.AssigneeID,
		Priority:     t.Priority,
		Context:      t.Context,
		Metadata:     t.Metadata,
		Status:       t.Status,
		Data:         t.Data,
		CompletedBy:  t.CompletedBy,
		CancelReason: t.CancelReason,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		DueAt:        t.DueAt,
		CompletedAt:  t.CompletedAt,
	}
	if t.Status == StatusOpen && t.DueAt != nil {
		warnBefore := time.Duration(0)
		if t.SLA != nil {
			warnBefore = t.SLA.WarnBefore
		}
		resp.SLAState = string(SLAStateAt(*t.DueAt, warnBefore, now))
	}
	return resp
}

func (r *assignmentTargetRequest) toTarget() AssignmentTarget {
	if r == nil {
		return AssignmentTarget{}
	}
	return AssignmentTarget{PersonID: r.PersonID, GroupID: r.GroupID}
}

func targetPtr(r *assignmentTargetRequest) *AssignmentTarget {
	if r == nil {
		return nil
	}
	t := r.toTarget()
	return &t
}

func (r *slaRequest) toConfig() (*SLAConfig, error) {
	if r == nil {
		return nil, nil
	}
	cfg := &SLAConfig{
		DeadlineAt: r.DeadlineAt,
		OnBreach:   BreachAction(r.OnBreach),
		EscalateTo: targetPtr(r.EscalateTo),
	}
	if r.DeadlineIn != "" {
		d, err := duration.Parse(r.DeadlineIn)
		if err != nil {
			return nil, fmt.Errorf("deadlineIn: %w", err)
		}
		cfg.DeadlineIn = d
	}
	if r.WarnBefore != "" {
		d, err := duration.Parse(r.WarnBefore)
		if err != nil {
			return nil, fmt.Errorf("warnBefore: %w", err)
		}
		cfg.WarnBefore = d
	}
	for i, step := range r.Chain {
		after, err := duration.Parse(step.After)
		if err != nil {
			return nil, fmt.Errorf("chain[%d].after: %w", i, err)
		}
		cfg.Chain = append(cfg.Chain, EscalationStep{
			After:   after,
			Action:  StepAction(step.Action),
			Target:  targetPtr(step.Target),
			Message: step.Message,
		})
	}
	return cfg, nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if req.Title == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "title is required", nil)
		return
	}

	slaCfg, err := req.SLA.toConfig()
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, err.Error(), err)
		return
	}

	assigneeID, err := s.resolver.ResolvePerson(ctx, req.Assignment.toTarget(), req.Strategy)
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "failed to resolve assignment", err)
		return
	}

	now := time.Now()
	t := &Task{
		ID:          ulid.Make().String(),
		TenantID:    req.TenantID,
		ProcessID:   req.ProcessID,
		RunID:       req.RunID,
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Form:        req.Form,
		Assignment:  req.Assignment.toTarget(),
		AssigneeID:  assigneeID,
		SLA:         slaCfg,
		Context:     req.Context,
		Metadata:    req.Metadata,
		Priority:    Priority(req.Priority),
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if due, ok := slaCfg.DeadlineFrom(now); ok {
		t.DueAt = &due
	}

	if err := s.repo.Create(ctx, t); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	if err := s.notifier.Notify(ctx, t.AssigneeID, &notification.Payload{
		Title: "New task assigned",
		Body:  t.Title,
		Tag:   "task-assigned",
	}); err != nil {
		slog.WarnContext(ctx, "failed to notify assignee", "task_id", t.ID, "error", err)
	}

	cerr.SetJSONStatus(ctx, http.StatusCreated)
	cerr.SetJSONResponse(ctx, toResponse(t, now))
}

type listTasksResponse struct {
	Tasks []*taskResponse `json:"tasks"`
	Total int             `json:"total"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := ListFilter{
		TenantID:   q.Get("tenantId"),
		ProcessID:  q.Get("processId"),
		Status:     Status(q.Get("status")),
		AssigneeID: q.Get("assigneeId"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	tasks, total, err := s.repo.List(ctx, filter)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	now := time.Now()
	resp := listTasksResponse{Tasks: make([]*taskResponse, 0, len(tasks)), Total: total}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, toResponse(t, now))
	}
	cerr.SetJSONResponse(ctx, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.repo.Get(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, toResponse(t, time.Now()))
}

type completeTaskRequest struct {
	Data        map[string]any `json:"data"`
	CompletedBy string         `json:"completedBy"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")

	var req completeTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if req.CompletedBy == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "completedBy is required", nil)
		return
	}

	t, err := s.repo.Get(ctx, taskID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if t.Resolved() {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "task is already resolved", nil)
		return
	}
	if err := validateFormData(t.Form, req.Data); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, err.Error(), err)
		return
	}

	now := time.Now()
	t.Status = StatusCompleted
	t.Data = req.Data
	t.CompletedBy = req.CompletedBy
	t.CompletedAt = &now
	t.UpdatedAt = now
	if err := s.repo.Update(ctx, t); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	if _, err := s.bus.DeliverNew(signalbus.SignalTaskCompleted, t.ID, map[string]any{
		"taskId":      t.ID,
		"data":        req.Data,
		"completedBy": req.CompletedBy,
		"completedAt": now,
	}); err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "failed to publish completion", err)
		return
	}
	cerr.SetJSONResponse(ctx, toResponse(t, now))
}

type cancelTaskRequest struct {
	Reason      string `json:"reason,omitempty"`
	CancelledBy string `json:"cancelledBy,omitempty"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")

	var req cancelTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}

	t, err := s.repo.Get(ctx, taskID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if t.Resolved() {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "task is already resolved", nil)
		return
	}

	now := time.Now()
	t.Status = StatusCancelled
	t.CancelReason = req.Reason
	t.CancelledBy = req.CancelledBy
	t.UpdatedAt = now
	if err := s.repo.Update(ctx, t); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	if _, err := s.bus.DeliverNew(signalbus.SignalTaskCancelled, t.ID, map[string]any{
		"taskId":      t.ID,
		"reason":      req.Reason,
		"cancelledBy": req.CancelledBy,
	}); err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "failed to publish cancellation", err)
		return
	}
	cerr.SetJSONResponse(ctx, toResponse(t, now))
}

// validateFormData enforces required fields and select options.
func validateFormData(schema FormSchema, data map[string]any) error {
	for _, f := range schema {
		v, ok := data[f.Name]
		if !ok || v == nil || v == "" {
			if f.Required {
				return fmt.Errorf("field %q is required", f.Name)
			}
			continue
		}
		if f.Type == "select" && len(f.Options) > 0 {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("field %q must be a string", f.Name)
			}
			valid := false
			for _, opt := range f.Options {
				if s == opt {
					valid = true
					break
				}
			}
			if !valid {
				return fmt.Errorf("field %q has no option %q", f.Name, s)
			}
		}
	}
	return nil
}
