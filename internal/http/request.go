package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"fintrack/internal/core"
)

const maxBodyBytes = 1 << 20

// reserved query keys that are not filters
var pagingParams = map[string]bool{"cursor": true, "pageSize": true, "search": true}

// parsePageRequest reads cursor, pageSize and search from the query string.
// Every other key is passed through as a filter; the store rejects unknown ones.
func parsePageRequest(r *http.Request, defaultPageSize int) (core.PageRequest, error) {
	q := r.URL.Query()
	req := core.PageRequest{
		PageSize: defaultPageSize,
		Search:   sanitizeInput(q.Get("search")),
		Filters:  map[string]string{},
	}

	if v := strings.TrimSpace(q.Get("cursor")); v != "" {
		c, err := strconv.ParseInt(v, 10, 64)
		if err != nil || c < 0 {
			return core.PageRequest{}, core.InvalidArgument("invalid cursor")
		}
		req.Cursor = &c
	}
	if v := strings.TrimSpace(q.Get("pageSize")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return core.PageRequest{}, core.InvalidArgument("invalid page size")
		}
		req.PageSize = n
	}

	for key, values := range q {
		if pagingParams[key] || len(values) == 0 {
			continue
		}
		req.Filters[key] = sanitizeInput(values[0])
	}
	return req, nil
}

// parseID reads the {id} path segment.
func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.InvalidArgument("invalid id")
	}
	return id, nil
}

// decodeJSON strictly decodes one JSON object from the body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return core.InvalidArgument("request body too large")
		case errors.Is(err, io.EOF):
			return core.InvalidArgument("request body is required")
		default:
			return core.InvalidArgument("invalid request body: %s", describeDecodeError(err))
		}
	}
	if dec.More() {
		return core.InvalidArgument("invalid request body: unexpected data after JSON object")
	}
	return nil
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return "field " + typeErr.Field + " has the wrong type"
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return "malformed JSON"
	}
	// unknown fields, bad dates and bad amounts carry readable messages
	return strings.TrimPrefix(err.Error(), "json: ")
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
