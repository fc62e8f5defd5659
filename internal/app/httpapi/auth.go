package httpapi

import (
	"net/http"

	"github.com/VitalSync/health_layer/internal/httputil"
	"github.com/VitalSync/health_layer/internal/middleware"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	res, err := h.app.Auth.Register(r.Context(), body.Email, body.Password, body.Name)
	respond(w, r, http.StatusCreated, res, err)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	res, err := h.app.Auth.Login(r.Context(), body.Email, body.Password)
	respond(w, r, http.StatusOK, res, err)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	err := h.app.Auth.Logout(r.Context(), middleware.TokenFromContext(r.Context()))
	respond(w, r, http.StatusNoContent, nil, err)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	user, err := h.app.Auth.Me(r.Context(), userID)
	respond(w, r, http.StatusOK, user, err)
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var body struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	token := middleware.TokenFromContext(r.Context())
	err := h.app.Auth.ChangePassword(r.Context(), userID, token, body.CurrentPassword, body.NewPassword)
	respond(w, r, http.StatusNoContent, nil, err)
}
