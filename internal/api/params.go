package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"genestore/internal/errors"
)

// QueryParamBool extracts a boolean query parameter with a default value
func QueryParamBool(r *http.Request, name string, defaultVal bool) bool {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1" || val == "yes"
}

// QueryParamList splits a comma-separated query parameter, dropping blanks.
func QueryParamList(r *http.Request, name string) []string {
	val := r.URL.Query().Get(name)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// readJSON decodes the request body into v, bounded by the server's body
// limit. A malformed or oversized body is INVALID_MODEL.
func (s *Server) readJSON(r *http.Request, v any) error {
	body, err := s.readBody(r)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New(errors.InvalidModel, "request body is required", nil)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.New(errors.InvalidModel, "request body is not valid JSON", err)
	}
	return nil
}

// readBody reads the raw request body, bounded by the server's body limit.
func (s *Server) readBody(r *http.Request) ([]byte, error) {
	reader := io.Reader(r.Body)
	if s.maxBody > 0 {
		reader = io.LimitReader(r.Body, s.maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.New(errors.InvalidModel, "could not read request body", err)
	}
	if s.maxBody > 0 && int64(len(body)) > s.maxBody {
		return nil, errors.Newf(errors.InvalidModel, "request body exceeds %d bytes", s.maxBody)
	}
	return body, nil
}

// readOptionalJSON is readJSON for bodies that may be omitted.
func (s *Server) readOptionalJSON(r *http.Request, v any) error {
	body, err := s.readBody(r)
	if err != nil || len(body) == 0 {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.New(errors.InvalidModel, "request body is not valid JSON", err)
	}
	return nil
}
