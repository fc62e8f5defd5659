package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"mime"
	"net/http"

	"github.com/VitalSync/health_layer/internal/app/domain/profile"
	"github.com/VitalSync/health_layer/internal/app/services/profiles"
	"github.com/VitalSync/health_layer/internal/errors"
	"github.com/VitalSync/health_layer/internal/httputil"
)

// avatarField is the multipart form field carrying the image.
const avatarField = "avatar"

func (h *handler) getProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	p, err := h.app.Profiles.Get(r.Context(), userID)
	respond(w, r, http.StatusOK, p, err)
}

func (h *handler) submitOnboarding(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var sub profiles.Submission
	if !httputil.DecodeJSON(w, r, &sub) {
		return
	}
	p, err := h.app.Profiles.SubmitOnboarding(r.Context(), userID, sub)
	respond(w, r, http.StatusOK, p, err)
}

func (h *handler) saveProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var body struct {
		Step  int             `json:"step"`
		Draft json.RawMessage `json:"draft"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	progress, err := h.app.Profiles.SaveProgress(r.Context(), userID, body.Step, body.Draft)
	respond(w, r, http.StatusOK, progress, err)
}

func (h *handler) updatePersonal(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var personal profile.Personal
	if !httputil.DecodeJSON(w, r, &personal) {
		return
	}
	p, err := h.app.Profiles.UpdatePersonal(r.Context(), userID, personal)
	respond(w, r, http.StatusOK, p, err)
}

func (h *handler) updateDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var layout profile.Dashboard
	if !httputil.DecodeJSON(w, r, &layout) {
		return
	}
	p, err := h.app.Profiles.UpdateDashboard(r.Context(), userID, layout.Widgets)
	respond(w, r, http.StatusOK, p, err)
}

func (h *handler) listProviders(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	providers, err := h.app.Profiles.ListProviders(r.Context(), userID)
	respond(w, r, http.StatusOK, providers, err)
}

func (h *handler) addProvider(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var provider profile.Provider
	if !httputil.DecodeJSON(w, r, &provider) {
		return
	}
	created, err := h.app.Profiles.AddProvider(r.Context(), userID, provider)
	respond(w, r, http.StatusCreated, created, err)
}

func (h *handler) removeProvider(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	err := h.app.Profiles.RemoveProvider(r.Context(), userID, pathID(r))
	respond(w, r, http.StatusNoContent, nil, err)
}

// uploadAvatar accepts either a multipart form with an "avatar" file or the
// raw image as the request body.
func (h *handler) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()

	var body io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		part, err := avatarPart(r)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		defer part.Close()
		body = part
	}

	p, err := h.app.Profiles.UploadAvatar(r.Context(), userID, body)
	respond(w, r, http.StatusOK, p, err)
}

func avatarPart(r *http.Request) (io.ReadCloser, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, errors.BadRequest("malformed multipart body")
	}
	for {
		part, err := reader.NextPart()
		if stderrors.Is(err, io.EOF) {
			return nil, errors.Validation(avatarField, "file is required")
		}
		if err != nil {
			return nil, errors.BadRequest("malformed multipart body")
		}
		if part.FormName() == avatarField {
			return part, nil
		}
		_ = part.Close()
	}
}

func (h *handler) dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	view, err := h.app.Dashboard.Dashboard(r.Context(), userID)
	respond(w, r, http.StatusOK, view, err)
}
