package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/VitalSync/health_layer/internal/errors"
	"github.com/VitalSync/health_layer/internal/httputil"
)

const dateLayout = "2006-01-02"

// respond writes v with status, or err when it is non-nil.
func respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	httputil.WriteJSON(w, status, v)
}

func invalidQuery(name, expected string) *errors.ServiceError {
	return errors.InvalidFormat(name, expected)
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

// queryDate parses a YYYY-MM-DD query parameter; absent means zero.
func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, invalidQuery(name, "YYYY-MM-DD")
	}
	return t, nil
}

// queryInt parses an integer query parameter; absent means zero.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidQuery(name, "integer")
	}
	return n, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalidQuery(name, "boolean")
	}
	return b, nil
}
