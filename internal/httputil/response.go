// Package httputil provides JSON request/response helpers shared by handlers
// and middleware.
package httputil

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/VitalSync/health_layer/internal/errors"
	"github.com/VitalSync/health_layer/internal/logging"
)

// MaxJSONBodyBytes bounds every decoded JSON request body.
const MaxJSONBodyBytes = 1 << 20

// ErrorBody is the JSON envelope of an error response.
type ErrorBody struct {
	Error   ErrorDetail `json:"error"`
	TraceID string      `json:"trace_id,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON writes data as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// WriteErrorResponse writes the standard error envelope.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	body := ErrorBody{Error: ErrorDetail{Code: code, Message: message, Details: details}}
	if r != nil {
		body.TraceID = logging.GetTraceID(r.Context())
	}
	WriteJSON(w, status, body)
}

// WriteError renders err. ServiceErrors keep their status and message; anything
// else becomes an opaque 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("", err)
	}
	WriteErrorResponse(w, r, se.HTTPStatus, string(se.Code), se.Message, se.Details)
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields and
// oversized bodies. On failure it writes a 400/413 and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := decodeBody(w, r, dst); err != nil {
		WriteError(w, r, err)
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.BadRequest("request body required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case stderrors.As(err, &maxErr):
			return errors.PayloadTooLarge(MaxJSONBodyBytes)
		case stderrors.Is(err, io.EOF):
			return errors.BadRequest("request body required")
		default:
			return errors.Wrap(err, errors.CodeBadRequest, "invalid JSON body: "+sanitizeDecodeError(err), http.StatusBadRequest)
		}
	}
	if dec.More() {
		return errors.BadRequest("request body must contain a single JSON object")
	}
	return nil
}

func sanitizeDecodeError(err error) string {
	msg := err.Error()
	msg = strings.TrimPrefix(msg, "json: ")
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func BadRequest(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusBadRequest, string(errors.CodeBadRequest), message, nil)
}

func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "authentication required"
	}
	WriteErrorResponse(w, nil, http.StatusUnauthorized, string(errors.CodeUnauthorized), message, nil)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusNotFound, string(errors.CodeNotFound), message, nil)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusInternalServerError, string(errors.CodeInternal), message, nil)
}

// RequireUserID returns the authenticated user id or writes a 401.
func RequireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := logging.GetUserID(r.Context())
	if userID == "" {
		WriteErrorResponse(w, r, http.StatusUnauthorized, string(errors.CodeUnauthorized), "authentication required", nil)
		return "", false
	}
	return userID, true
}
