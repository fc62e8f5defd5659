package httpapi

import (
	"net/http"

	"github.com/VitalSync/health_layer/internal/app/domain/fitness"
	"github.com/VitalSync/health_layer/internal/httputil"
)

func (h *handler) getGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	goals, err := h.app.Fitness.GetGoals(r.Context(), userID)
	respond(w, r, http.StatusOK, goals, err)
}

func (h *handler) setGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var goals fitness.Goals
	if !httputil.DecodeJSON(w, r, &goals) {
		return
	}
	saved, err := h.app.Fitness.SetGoals(r.Context(), userID, goals)
	respond(w, r, http.StatusOK, saved, err)
}

func (h *handler) logActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var entry fitness.Log
	if !httputil.DecodeJSON(w, r, &entry) {
		return
	}
	created, err := h.app.Fitness.LogActivity(r.Context(), userID, entry)
	respond(w, r, http.StatusCreated, created, err)
}

func (h *handler) listLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	logs, err := h.app.Fitness.ListLogs(r.Context(), userID, from, to)
	respond(w, r, http.StatusOK, logs, err)
}

func (h *handler) deleteLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	err := h.app.Fitness.DeleteLog(r.Context(), userID, pathID(r))
	respond(w, r, http.StatusNoContent, nil, err)
}

func (h *handler) dailySummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	date, err := queryDate(r, "date")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	summary, err := h.app.Fitness.DailySummary(r.Context(), userID, date)
	respond(w, r, http.StatusOK, summary, err)
}

func (h *handler) weeklyStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	end, err := queryDate(r, "end")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	stats, err := h.app.Fitness.WeeklyStats(r.Context(), userID, end)
	respond(w, r, http.StatusOK, stats, err)
}
