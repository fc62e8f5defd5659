package httpapi

import (
	"net/http"
	"strings"

	"github.com/VitalSync/health_layer/internal/app/domain/notification"
	"github.com/VitalSync/health_layer/internal/errors"
	"github.com/VitalSync/health_layer/internal/httputil"
)

const maxBroadcastUsers = 1000

func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	unreadOnly, err := queryBool(r, "unread")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	list, err := h.app.Notifications.List(r.Context(), userID, unreadOnly, limit)
	respond(w, r, http.StatusOK, list, err)
}

func (h *handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	n, err := h.app.Notifications.UnreadCount(r.Context(), userID)
	respond(w, r, http.StatusOK, map[string]int{"unread": n}, err)
}

func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	n, err := h.app.Notifications.MarkRead(r.Context(), userID, pathID(r))
	respond(w, r, http.StatusOK, n, err)
}

func (h *handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	n, err := h.app.Notifications.MarkAllRead(r.Context(), userID)
	respond(w, r, http.StatusOK, map[string]int{"updated": n}, err)
}

func (h *handler) deleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	err := h.app.Notifications.Delete(r.Context(), userID, pathID(r))
	respond(w, r, http.StatusNoContent, nil, err)
}

// stream upgrades to a websocket that receives the user's new notifications.
func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	h.app.Hub.ServeWS(w, r, userID)
}

func (h *handler) broadcastNotification(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserIDs []string `json:"user_ids"`
		Type    string   `json:"type"`
		Title   string   `json:"title"`
		Message string   `json:"message"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if len(body.UserIDs) == 0 {
		httputil.WriteError(w, r, errors.Validation("user_ids", "at least one user is required"))
		return
	}
	if len(body.UserIDs) > maxBroadcastUsers {
		httputil.WriteError(w, r, errors.Validation("user_ids", "too many users"))
		return
	}
	kind := strings.TrimSpace(body.Type)
	if kind == "" {
		kind = notification.TypeSystem
	}

	created := 0
	for _, userID := range body.UserIDs {
		_, ok, err := h.app.Notifications.Notify(r.Context(), userID, kind, body.Title, body.Message, "")
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		if ok {
			created++
		}
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]int{"created": created})
}
