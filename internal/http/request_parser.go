// Package http provides HTTP server and handler implementations.
//
// This file holds the request side helpers: reading the uploaded CSV out of
// a multipart form and pulling view parameters from the query string.

package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"
)

const uploadField = "file"

// Upload rejections. Each maps to its own status code in the upload handler.
var (
	ErrNoFile       = errors.New("no file uploaded")
	ErrNotCSV       = errors.New("file is not a csv")
	ErrTooLarge     = errors.New("file exceeds the upload limit")
	ErrNotText      = errors.New("file is not utf-8 text")
	ErrBadMultipart = errors.New("malformed multipart request")
)

// Upload is the CSV file taken from a request.
type Upload struct {
	FileName string
	Content  string
	Size     int64
}

// ReadUpload extracts the CSV file from the multipart field "file". The body
// is capped at maxBytes.
func ReadUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return Upload{}, ErrTooLarge
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return Upload{}, ErrBadMultipart
		}
		return Upload{}, fmt.Errorf("%w: %v", ErrBadMultipart, err)
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return Upload{}, ErrNoFile
	}
	defer file.Close()

	name := sanitizeFileName(header.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return Upload{}, ErrNotCSV
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return Upload{}, fmt.Errorf("read upload: %w", err)
	}
	if !utf8.Valid(data) {
		return Upload{}, ErrNotText
	}

	return Upload{FileName: name, Content: string(data), Size: int64(len(data))}, nil
}

// sanitizeFileName keeps the base name and drops control characters.
func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	return sanitizeInput(name)
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// ParseActiveIndex reads the "active" query parameter. ok is false when it is
// missing or not a non-negative integer.
func ParseActiveIndex(query url.Values) (index int, ok bool) {
	v := strings.TrimSpace(query.Get("active"))
	if v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}
