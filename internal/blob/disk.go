package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore writes objects below a root directory.
type DiskStore struct {
	root    string
	baseURL string
}

var _ Store = (*DiskStore)(nil)

// NewDiskStore creates the root directory if needed. baseURL is the public
// prefix the objects are served under, e.g. "/uploads".
func NewDiskStore(root, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (d *DiskStore) Backend() string { return "disk" }

func (d *DiskStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	target := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("move object: %w", err)
	}
	return d.baseURL + "/" + key, nil
}

func (d *DiskStore) Delete(_ context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(d.root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Handler serves stored objects. Directory listings are not exposed.
func (d *DiskStore) Handler() http.Handler {
	files := http.FileServer(http.Dir(d.root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, r)
	})
}
