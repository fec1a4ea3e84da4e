package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/achievement-engine/internal/application/command"
	"github.com/alem-hub/achievement-engine/internal/application/query"
	"github.com/alem-hub/achievement-engine/internal/application/saga"
	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	httpStatus := http.StatusOK
	if !status.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, r, httpStatus, status)
}

// handleReady handles GET /ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSONError(w, http.StatusServiceUnavailable, "not_ready", status.Message)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"ready": true})
}

// handleLive handles GET /live. Liveness never depends on external systems.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"alive": true})
}

// handleRoot handles GET /.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"service": "achievement-engine",
		"version": s.config.Version,
		"uptime":  s.Uptime().Round(time.Second).String(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLECTION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetCollection handles GET /api/v1/users/{userID}/achievements.
//
// Query parameters:
//   - organization_id: required with progress=true
//   - progress: include progress for unearned achievements
//   - timezone: IANA zone for day boundaries in progress
//   - lang: overrides Accept-Language
func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	q := query.GetCollectionQuery{
		UserID:          r.PathValue("userID"),
		OrganizationID:  r.URL.Query().Get("organization_id"),
		Language:        language(r),
		IncludeProgress: getQueryParamBool(r, "progress"),
	}
	if tz := r.URL.Query().Get("timezone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_timezone", "Unknown timezone", tz)
			return
		}
		q.Location = loc
	}

	result, err := s.deps.Collection.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetUnnotified handles GET /api/v1/users/{userID}/achievements/unnotified.
func (s *Server) handleGetUnnotified(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Unnotified.Handle(r.Context(), query.GetUnnotifiedQuery{
		UserID:   r.PathValue("userID"),
		Language: language(r),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []query.UnnotifiedDTO{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// MarkNotifiedResponse is the body returned by the notified endpoints.
type MarkNotifiedResponse struct {
	UserID   string    `json:"user_id"`
	Marked   int       `json:"marked"`
	MarkedAt time.Time `json:"marked_at"`
}

// handleMarkNotified handles POST /api/v1/users/{userID}/achievements/{code}/notified.
func (s *Server) handleMarkNotified(w http.ResponseWriter, r *http.Request) {
	s.markNotified(w, r, r.PathValue("code"))
}

// handleMarkAllNotified handles POST /api/v1/users/{userID}/achievements/notified.
func (s *Server) handleMarkAllNotified(w http.ResponseWriter, r *http.Request) {
	s.markNotified(w, r, "")
}

func (s *Server) markNotified(w http.ResponseWriter, r *http.Request, code string) {
	result, err := s.deps.MarkNotify.Handle(r.Context(), command.MarkNotifiedCommand{
		UserID: r.PathValue("userID"),
		Code:   code,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, MarkNotifiedResponse{
		UserID:   result.UserID,
		Marked:   result.Marked,
		MarkedAt: result.MarkedAt,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard handles GET /api/v1/organizations/{orgID}/leaderboard.
//
// Query parameters:
//   - kind: difficulty (default), count, growth_rate
//   - workspace_id: narrow to one workspace
//   - user_id: requesting user, returned as self
//   - limit: top-K size (default: 20, max: 100)
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	kind := params.Get("kind")
	if kind == "" {
		kind = "difficulty"
	}

	result, err := s.deps.Leaderboard.Handle(r.Context(), query.GetLeaderboardQuery{
		OrganizationID: r.PathValue("orgID"),
		WorkspaceID:    params.Get("workspace_id"),
		Kind:           kind,
		UserID:         params.Get("user_id"),
		Limit:          getQueryParamInt(r, "limit", 20),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// FACT INGESTION
// ══════════════════════════════════════════════════════════════════════════════

// handlePostFact handles POST /api/v1/facts.
func (s *Server) handlePostFact(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Failed to read request body")
		return
	}

	event, err := s.deps.Facts.HandleFact(r.Context(), body)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]any{
		"organization_id": event.OrganizationID,
		"user_id":         event.UserID,
		"action_type":     event.ActionType,
		"occurred_at":     event.OccurredAt(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateRequest is the optional body of an on-demand evaluation.
type EvaluateRequest struct {
	UserID      string   `json:"user_id,omitempty"`
	WorkspaceID string   `json:"workspace_id,omitempty"`
	Timezone    string   `json:"timezone,omitempty"`
	Codes       []string `json:"codes,omitempty"`
}

// EvaluateResponse summarizes a run.
type EvaluateResponse struct {
	RunID      string    `json:"run_id"`
	Users      int       `json:"users"`
	Evaluated  int       `json:"evaluated"`
	Earned     int       `json:"earned"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// handleEvaluate handles POST /api/v1/admin/organizations/{orgID}/evaluate.
// With user_id it evaluates one user, otherwise every member of the scope.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body", err.Error())
			return
		}
	}

	scope := saga.Scope{
		OrganizationID: r.PathValue("orgID"),
		WorkspaceID:    req.WorkspaceID,
		UserID:         req.UserID,
	}
	if req.Timezone != "" {
		loc, err := time.LoadLocation(req.Timezone)
		if err != nil {
			writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_timezone", "Unknown timezone", req.Timezone)
			return
		}
		scope.Location = loc
	}

	var codes []achievement.Code
	for _, c := range req.Codes {
		codes = append(codes, achievement.Code(c))
	}

	asOf := s.now()
	var (
		result *saga.RunResult
		err    error
	)
	if scope.UserID != "" {
		result, err = s.deps.Evaluator.EvaluateUser(r.Context(), scope, asOf, codes)
	} else {
		result, err = s.deps.Evaluator.EvaluateOrganization(r.Context(), scope, asOf, codes)
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("on-demand evaluation finished",
		logger.OrganizationID(scope.OrganizationID),
		logger.RunID(result.RunID),
		zap.Int("earned", result.Earned),
	)
	writeJSON(w, r, http.StatusOK, EvaluateResponse{
		RunID:      result.RunID,
		Users:      result.Users,
		Evaluated:  result.Evaluated,
		Earned:     result.Earned,
		Failed:     result.Failed,
		Skipped:    result.Skipped,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	})
}

// UpdateDefinitionRequest carries the optional changes to a definition.
type UpdateDefinitionRequest struct {
	Category   *string `json:"category,omitempty"`
	Difficulty *string `json:"difficulty,omitempty"`
	Secret     *bool   `json:"secret,omitempty"`
	Active     *bool   `json:"active,omitempty"`
	SortOrder  *int    `json:"sort_order,omitempty"`
}

// handleUpdateDefinition handles PATCH /api/v1/admin/definitions/{code}.
func (s *Server) handleUpdateDefinition(w http.ResponseWriter, r *http.Request) {
	var req UpdateDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body", err.Error())
		return
	}

	result, err := s.deps.Definitions.Handle(r.Context(), command.UpdateDefinitionCommand{
		Code: r.PathValue("code"),
		Changes: command.DefinitionUpdates{
			Category:   req.Category,
			Difficulty: req.Difficulty,
			Secret:     req.Secret,
			Active:     req.Active,
			SortOrder:  req.SortOrder,
		},
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"code":           string(result.Definition.Code),
		"changed_fields": result.ChangedFields,
		"updated_at":     result.UpdatedAt,
	})
}
