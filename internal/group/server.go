package group

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/humangate/humangate/pkg/cerr"
)

// Server exposes group administration over JSON HTTP.
type Server struct {
	repo Repository
}

func NewServer(repo Repository) *Server {
	return &Server{repo: repo}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/groups", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/{groupID}", s.handleGet)
		r.Put("/{groupID}", s.handleUpdate)
		r.Delete("/{groupID}", s.handleDelete)
		r.Post("/{groupID}/members", s.handleAddMember)
		r.Delete("/{groupID}/members/{personID}", s.handleRemoveMember)
	})
}

type createGroupRequest struct {
	Name       string   `json:"name"`
	Assignable *bool    `json:"assignable,omitempty"`
	Strategy   string   `json:"strategy,omitempty"`
	Members    []string `json:"members,omitempty"`
}

func validStrategy(s Strategy) bool {
	switch s {
	case StrategyRoundRobin, StrategyLoadBalanced, StrategyDirect:
		return true
	}
	return false
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if req.Name == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "name is required", nil)
		return
	}

	now := time.Now()
	g := &Group{
		ID:         ulid.Make().String(),
		Name:       req.Name,
		Assignable: true,
		Strategy:   StrategyRoundRobin,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.Assignable != nil {
		g.Assignable = *req.Assignable
	}
	if req.Strategy != "" {
		strategy := Strategy(req.Strategy)
		if !validStrategy(strategy) {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "unknown assignment strategy", nil)
			return
		}
		g.Strategy = strategy
	}
	for _, personID := range req.Members {
		g.AddMember(personID, now)
	}
	g.SyncMemberCount()

	if err := s.repo.Create(ctx, g); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONStatus(ctx, http.StatusCreated)
	cerr.SetJSONResponse(ctx, g)
}

type listGroupsResponse struct {
	Groups []*Group `json:"groups"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groups, err := s.repo.List(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, listGroupsResponse{Groups: groups})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	g, err := s.repo.Get(ctx, chi.URLParam(r, "groupID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, g)
}

type updateGroupRequest struct {
	Name       *string `json:"name,omitempty"`
	Assignable *bool   `json:"assignable,omitempty"`
	Strategy   *string `json:"strategy,omitempty"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}

	g, err := s.repo.Get(ctx, chi.URLParam(r, "groupID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Name != nil {
		g.Name = *req.Name
	}
	if req.Assignable != nil {
		g.Assignable = *req.Assignable
	}
	if req.Strategy != nil {
		strategy := Strategy(*req.Strategy)
		if !validStrategy(strategy) {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "unknown assignment strategy", nil)
			return
		}
		g.Strategy = strategy
	}
	g.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, g); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, g)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.repo.Delete(ctx, chi.URLParam(r, "groupID")); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONStatus(ctx, http.StatusNoContent)
}

type addMemberRequest struct {
	PersonID string `json:"personId"`
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if req.PersonID == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "personId is required", nil)
		return
	}

	g, err := s.repo.Get(ctx, chi.URLParam(r, "groupID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	g.AddMember(req.PersonID, time.Now())
	g.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, g); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, g)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	g, err := s.repo.Get(ctx, chi.URLParam(r, "groupID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if !g.RemoveMember(chi.URLParam(r, "personID")) {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "member not found", nil)
		return
	}
	g.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, g); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, g)
}
