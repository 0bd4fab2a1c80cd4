package storage

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrConfig reports missing storage settings at construction.
var ErrConfig = errors.New("storage config")

// Uploader stores an uploaded image and returns a URL clients can fetch it from.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error)
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeName collapses every run of characters outside [a-zA-Z0-9._-] to "_".
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = unsafeNameChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		return "image"
	}
	return name
}

func objectKey(now time.Time, parts ...string) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "_" + strings.Join(parts, "_")
}
