package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"smartspend/internal/core"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

var errUnreadableUpload = errors.New("upload is not a text file")

// readUpload decodes an uploaded file to text. A UTF-16 byte order mark
// (spreadsheet "Unicode text" exports) selects UTF-16; anything else must be
// UTF-8, with or without a BOM.
func readUpload(r io.Reader) (string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	utf16 := bytes.HasPrefix(raw, []byte{0xFF, 0xFE}) || bytes.HasPrefix(raw, []byte{0xFE, 0xFF})
	if len(bytes.TrimSpace(raw)) == 0 || (!utf16 && !utf8.Valid(raw)) {
		return "", errUnreadableUpload
	}

	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return "", fmt.Errorf("decode upload: %w", err)
	}
	if bytes.IndexByte(decoded, 0) >= 0 {
		return "", errUnreadableUpload
	}
	return string(decoded), nil
}

type analysisView struct {
	Ref               string          `json:"ref"`
	Email             string          `json:"email,omitempty"`
	Total             float64         `json:"total"`
	Average           float64         `json:"average"`
	Prediction        float64         `json:"prediction"`
	Anomalies         int             `json:"anomalies"`
	StrongestCategory string          `json:"strongest_category"`
	Payload           json.RawMessage `json:"payload"`
	ExportStatus      string          `json:"export_status"`
	CreatedAt         string          `json:"created_at"`
}

func toAnalysisView(a core.Analysis) analysisView {
	payload := json.RawMessage(a.Payload)
	if !json.Valid(payload) {
		// stored verbatim from a client; hand it back as a string
		quoted, _ := json.Marshal(a.Payload)
		payload = quoted
	}
	return analysisView{
		Ref:               a.Ref,
		Email:             a.Email,
		Total:             a.Total,
		Average:           a.Average,
		Prediction:        a.Prediction,
		Anomalies:         a.Anomalies,
		StrongestCategory: a.StrongestCategory,
		Payload:           payload,
		ExportStatus:      string(a.ExportStatus),
		CreatedAt:         formatTime(a.CreatedAt),
	}
}

type profileView struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Occupation string `json:"occupation"`
	Avatar     string `json:"avatar"`
	Theme      string `json:"theme"`
	UpdatedAt  string `json:"updated_at"`
}

func toProfileView(p core.Profile) profileView {
	return profileView{
		Email:      p.Email,
		Name:       p.Name,
		Occupation: p.Occupation,
		Avatar:     p.Avatar,
		Theme:      p.Theme,
		UpdatedAt:  formatTime(p.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
