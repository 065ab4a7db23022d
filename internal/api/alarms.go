package api

import (
	"net/http"

	"github.com/darshan-rambhia/netvault/internal/alarms"
	"github.com/darshan-rambhia/netvault/internal/model"
)

type acknowledgeRequest struct {
	ID int64 `json:"id"`
}

type preferenceRequest struct {
	Severity string `json:"severity"`
	Type     string `json:"type"`
}

// @Summary List alarms
// @Description Returns one page of the caller's tenant alarms, newest first. Without severity and type parameters the caller's saved preference applies.
// @Tags alarms
// @Produce json
// @Security UserToken
// @Param status query string false "active (default), acknowledged or all"
// @Param severity query string false "info, warning or critical"
// @Param type query string false "alarm type"
// @Param page query int false "1-based page (default 1)"
// @Param page_size query int false "page size (default 50, max 200)"
// @Success 200 {object} model.AlarmPage
// @Failure 400 {object} errorBody
// @Router /api/v1/alarms [get]
func (s *Server) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	q := r.URL.Query()

	page, ok := queryInt(w, r, "page")
	if !ok {
		return
	}
	size, ok := queryInt(w, r, "page_size")
	if !ok {
		return
	}

	f := alarms.ListFilter{
		Status:   model.AlarmStatusFilter(q.Get("status")),
		Severity: q.Get("severity"),
		Type:     model.AlarmType(q.Get("type")),
		Page:     model.Page{Number: page, Size: size},
	}
	if !q.Has("severity") && !q.Has("type") {
		pref, err := s.alarms.GetPreference(r.Context(), p.UserID, p.TenantID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		f.Severity = pref.Severity
		f.Type = model.AlarmType(pref.Type)
	}

	res, err := s.alarms.List(r.Context(), p.TenantID, f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// @Summary Acknowledge an alarm
// @Description Marks an alarm of the caller's tenant as acknowledged. Acknowledging does not resolve.
// @Tags alarms
// @Accept json
// @Security UserToken
// @Param body body acknowledgeRequest true "alarm id"
// @Success 204
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /api/v1/alarms/acknowledge [post]
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req acknowledgeRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.ID <= 0 {
		writeError(w, r, http.StatusBadRequest, codeValidation, "id must be a positive integer")
		return
	}
	if err := s.alarms.Acknowledge(r.Context(), principal(r).TenantID, req.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary Resolve an alarm
// @Description Manually resolves an unresolved alarm of the caller's tenant; requires the admin or operator role
// @Tags alarms
// @Produce json
// @Security UserToken
// @Param id path int true "alarm id"
// @Success 200 {object} model.Alarm
// @Failure 403 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /api/v1/alarms/{id}/resolve [post]
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p := principal(r)
	if err := p.RequireElevated(); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a, err := s.alarms.Resolve(r.Context(), p.TenantID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

// @Summary Get alarm preferences
// @Description Returns the caller's saved alarm list filter
// @Tags alarms
// @Produce json
// @Security UserToken
// @Success 200 {object} model.AlarmPreference
// @Router /api/v1/alarms/preferences [get]
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	pref, err := s.alarms.GetPreference(r.Context(), p.UserID, p.TenantID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, pref)
}

// @Summary Save alarm preferences
// @Description Replaces the caller's saved alarm list filter. Empty fields match everything.
// @Tags alarms
// @Accept json
// @Produce json
// @Security UserToken
// @Param body body preferenceRequest true "filter"
// @Success 200 {object} model.AlarmPreference
// @Failure 400 {object} errorBody
// @Router /api/v1/alarms/preferences [put]
func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferenceRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	p := principal(r)
	pref := model.AlarmPreference{
		UserID:   p.UserID,
		TenantID: p.TenantID,
		Severity: req.Severity,
		Type:     req.Type,
	}
	if err := s.alarms.PutPreference(r.Context(), pref); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, pref)
}
