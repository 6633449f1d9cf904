// Package http provides the SmartSpend HTTP API.
//
// This file implements utilities for parsing and validating request data.
// JSON bodies and form bodies are read through the same accessor so the
// browser dashboard and scripted clients can both post.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// ListParams holds the query parameters of GET /api/analysis.
type ListParams struct {
	Email string
	Limit int
}

// ParseListParams extracts email and limit, clamping limit to
// [1, maxListLimit] and defaulting it when absent or malformed.
func ParseListParams(query url.Values) ListParams {
	params := ListParams{
		Email: sanitizeInput(query.Get("email")),
		Limit: defaultListLimit,
	}
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			params.Limit = min(n, maxListLimit)
		}
	}
	return params
}

// parseBool accepts the usual spellings of a truthy flag.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// RequestBodyParser handles JSON and form-encoded request bodies.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]json.RawMessage
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}

	p.body, p.err = io.ReadAll(r.Body)
	return p
}

// Parse attempts to parse the body as a JSON object or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(trimmed, "{") || strings.Contains(p.contentType, "json") {
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = fmt.Errorf("decode json body: %w", err)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Has reports whether key was present in the body.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	return p.formData != nil && p.formData.Has(key)
}

// Get returns a sanitized string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if raw, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(raw))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Float returns key as a number. Absent or null values yield def; values
// that are present but not numeric are an error.
func (p *RequestBodyParser) Float(key string, def float64) (float64, error) {
	v := p.Get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return f, nil
}

// Int is Float for whole numbers. "3.0" is accepted, "3.5" is not.
func (p *RequestBodyParser) Int(key string, def int) (int, error) {
	f, err := p.Float(key, float64(def))
	if err != nil {
		return 0, fmt.Errorf("%s must be a whole number", key)
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("%s must be a whole number", key)
	}
	return int(f), nil
}

// Document returns key as JSON text. A JSON string holding a document is
// unquoted; objects and arrays are returned verbatim; absent values yield def.
func (p *RequestBodyParser) Document(key, def string) string {
	if p.jsonData == nil {
		if v := p.Get(key); v != "" {
			return v
		}
		return def
	}
	raw, ok := p.jsonData[key]
	if !ok || string(raw) == "null" {
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return def
		}
		return s
	}
	return string(raw)
}

// GetRaw returns the raw body bytes.
func (p *RequestBodyParser) GetRaw() []byte {
	return p.body
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue renders a JSON scalar as text. Objects and arrays yield "".
func stringValue(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
