// Package blob stores uploaded files on local disk or in S3 and sniffs their
// content type.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrInvalidKey is returned for keys that are empty, absolute or escape the root.
var ErrInvalidKey = errors.New("blob: invalid key")

// Store persists objects by key and returns the URL clients fetch them from.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	Backend() string
}

// CleanKey validates a slash separated object key.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// Sniffed is an upload read fully into memory with its detected type.
type Sniffed struct {
	Data      []byte
	MIME      string
	Extension string
}

// ReadLimited reads at most limit bytes from r and detects the content type.
// It returns ErrTooLarge when r holds more than limit bytes.
func ReadLimited(r io.Reader, limit int64) (Sniffed, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return Sniffed{}, fmt.Errorf("read upload: %w", err)
	}
	if n > limit {
		return Sniffed{}, ErrTooLarge
	}
	mt := mimetype.Detect(buf.Bytes())
	return Sniffed{Data: buf.Bytes(), MIME: mt.String(), Extension: mt.Extension()}, nil
}

// ErrTooLarge is returned by ReadLimited when the body exceeds the limit.
var ErrTooLarge = errors.New("blob: upload too large")

// IsAllowed reports whether mime matches one of the allowed types, ignoring
// parameters such as charset.
func IsAllowed(mime string, allowed ...string) bool {
	for _, candidate := range allowed {
		if mimetype.EqualsAny(mime, candidate) {
			return true
		}
	}
	return false
}
