package httpapi

import (
	"net/http"

	"github.com/VitalSync/health_layer/internal/app/domain/challenge"
	"github.com/VitalSync/health_layer/internal/httputil"
	"github.com/VitalSync/health_layer/internal/middleware"
)

func (h *handler) listChallenges(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := queryBool(r, "active")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	list, err := h.app.Challenges.List(r.Context(), activeOnly)
	respond(w, r, http.StatusOK, list, err)
}

func (h *handler) myChallenges(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	mine, err := h.app.Challenges.Mine(r.Context(), userID)
	respond(w, r, http.StatusOK, mine, err)
}

func (h *handler) getChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Challenges.Get(r.Context(), pathID(r))
	respond(w, r, http.StatusOK, c, err)
}

func (h *handler) joinChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	p, err := h.app.Challenges.Join(r.Context(), userID, pathID(r))
	respond(w, r, http.StatusCreated, p, err)
}

func (h *handler) leaveChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	err := h.app.Challenges.Leave(r.Context(), userID, pathID(r))
	respond(w, r, http.StatusNoContent, nil, err)
}

func (h *handler) addProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var body struct {
		Amount int `json:"amount"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	p, err := h.app.Challenges.AddProgress(r.Context(), userID, pathID(r), body.Amount)
	respond(w, r, http.StatusOK, p, err)
}

func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	board, err := h.app.Challenges.Leaderboard(r.Context(), pathID(r), limit)
	respond(w, r, http.StatusOK, board, err)
}

func (h *handler) createChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var c challenge.Challenge
	if !httputil.DecodeJSON(w, r, &c) {
		return
	}
	created, err := h.app.Challenges.Create(r.Context(), userID, middleware.GetUserRole(r.Context()), c)
	respond(w, r, http.StatusCreated, created, err)
}
