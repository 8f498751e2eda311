package http

import (
	"net/http"
	"strings"
)

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := queryBool(r, "active", false)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	NewJSONResponse().Body(toGoalDTOs(s.ops.ListGoals(r.Context(), activeOnly))).Write(w)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	id, ok := s.ops.SaveGoal(r.Context(), sanitizeInput(req.Category), req.Goal, req.active())
	if !ok {
		MutationResponse(false).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(okBody{OK: true, ID: id}).Write(w)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	category := sanitizeInput(req.Category)
	if req.Active == nil {
		MutationResponse(s.ops.EditGoal(r.Context(), id, category, req.Goal)).Write(w)
		return
	}
	MutationResponse(s.ops.UpdateGoal(r.Context(), id, category, req.Goal, *req.Active)).Write(w)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	MutationResponse(s.ops.DeleteGoal(r.Context(), id)).Write(w)
}

// handleProgress serves one month, chosen by ?month=YYYY-MM or by
// ?offset=N months from the current month (negative looks back).
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if month := strings.TrimSpace(r.URL.Query().Get("month")); month != "" {
		NewJSONResponse().Body(map[string]any{
			"month": month,
			"rows":  toProgressDTOs(s.ops.ProgressForMonth(r.Context(), month)),
		}).Write(w)
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"month":  s.ops.MonthForOffset(offset),
		"offset": offset,
		"rows":   toProgressDTOs(s.ops.ProgressForOffset(r.Context(), offset)),
	}).Write(w)
}

func (s *Server) handleProgressHistory(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(toProgressDTOs(s.ops.ProgressHistory(r.Context()))).Write(w)
}
