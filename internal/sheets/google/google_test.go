package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"smartspend/internal/core"
)

// fakeSheets is a minimal Sheets API: one spreadsheet, tabs hold rows of
// strings, unknown tabs answer 400 like the real service.
type fakeSheets struct {
	mu       sync.Mutex
	tabs     map[string][][]any
	appends  int
	addSheet int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			f.tabs[rq.AddSheet.Properties.Title] = nil
		}
		f.addSheet++
		json.NewEncoder(w).Encode(gsheet.BatchUpdateSpreadsheetResponse{})

	case strings.HasSuffix(path, ":append"):
		tab := tabOf(path)
		var vr gsheet.ValueRange
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &vr)
		f.tabs[tab] = append(f.tabs[tab], vr.Values...)
		f.appends++
		json.NewEncoder(w).Encode(gsheet.AppendValuesResponse{
			Updates: &gsheet.UpdateValuesResponse{UpdatedRange: "'" + tab + "'!A1:H1"},
		})

	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		tab := tabOf(path)
		rows, ok := f.tabs[tab]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":{"code":400,"message":"Unable to parse range: `+tab+`!B:B"}}`)
			return
		}
		var col [][]any
		for _, row := range rows {
			if len(row) > 1 {
				col = append(col, []any{row[1]})
			}
		}
		json.NewEncoder(w).Encode(gsheet.ValueRange{Values: col})

	default:
		http.NotFound(w, r)
	}
}

// tabOf extracts the quoted tab name from ".../values/'<tab>'!A:H".
func tabOf(path string) string {
	rest := path[strings.Index(path, "/values/")+len("/values/"):]
	rest = strings.TrimSuffix(rest, ":append")
	rest = rest[:strings.LastIndex(rest, "!")]
	return strings.ReplaceAll(strings.Trim(rest, "'"), "''", "'")
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return NewWithService(svc, "sheet-id", "")
}

func analysis(ref string) core.Analysis {
	return core.Analysis{
		Ref:               ref,
		Email:             "me@x.io",
		Total:             350,
		Average:           116.666,
		Prediction:        200,
		Anomalies:         1,
		StrongestCategory: "Rent",
		CreatedAt:         time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC),
	}
}

func TestExportAnalysisCreatesTabWithHeader(t *testing.T) {
	fake := &fakeSheets{tabs: map[string][][]any{}}
	c := newTestClient(t, fake)

	if _, err := c.ExportAnalysis(context.Background(), analysis("r-1")); err != nil {
		t.Fatalf("export: %v", err)
	}

	rows := fake.tabs["2024 Analyses"]
	if fake.addSheet != 1 {
		t.Fatalf("expected tab to be created once, got %d", fake.addSheet)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %v", rows)
	}
	if rows[0][1] != "Ref" {
		t.Fatalf("expected header row first, got %v", rows[0])
	}
	want := []any{"2024-02-03 10:00:00", "r-1", "me@x.io", "350.00", "116.67", "200.00", float64(1), "Rent"}
	for i, v := range want {
		if rows[1][i] != v {
			t.Fatalf("column %d: got %v (%T), want %v", i, rows[1][i], rows[1][i], v)
		}
	}
}

func TestExportAnalysisIsIdempotent(t *testing.T) {
	fake := &fakeSheets{tabs: map[string][][]any{
		"2024 Analyses": {
			{"Created", "Ref"},
			{"2024-01-01 00:00:00", "old"},
		},
	}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	if _, err := c.ExportAnalysis(ctx, analysis("old")); err != nil {
		t.Fatalf("export existing: %v", err)
	}
	if fake.appends != 0 {
		t.Fatalf("existing ref must not be appended again")
	}

	for i := 0; i < 2; i++ {
		if _, err := c.ExportAnalysis(ctx, analysis("new")); err != nil {
			t.Fatalf("export new: %v", err)
		}
	}
	if fake.appends != 1 {
		t.Fatalf("expected a single append, got %d", fake.appends)
	}
	if rows := fake.tabs["2024 Analyses"]; len(rows) != 3 {
		t.Fatalf("header must not be repeated, got %v", rows)
	}
}

func TestExportAnalysisValidation(t *testing.T) {
	if _, err := (&Client{}).ExportAnalysis(context.Background(), analysis("x")); err == nil {
		t.Fatal("expected error without service")
	}
	c := newTestClient(t, &fakeSheets{tabs: map[string][][]any{}})
	if _, err := c.ExportAnalysis(context.Background(), core.Analysis{}); err == nil {
		t.Fatal("expected error without ref")
	}
}

func TestNew_MissingConfig(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := New(context.Background(), Config{SpreadsheetID: "id"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Analyses", 2024, "2024 Analyses"},
		{"2023 Analyses", 2024, "2023 Analyses"},
		{"  Reports ", 2025, "2025 Reports"},
		{"", 2024, ""},
		{"123 abc", 2024, "2024 123 abc"},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestParseRefs(t *testing.T) {
	refs := parseRefs([][]interface{}{{"Ref"}, {"a"}, {}, {" "}, {"b"}, {"a"}})
	if len(refs) != 2 {
		t.Fatalf("unexpected refs %v", refs)
	}
	for _, k := range []string{"a", "b"} {
		if _, ok := refs[k]; !ok {
			t.Fatalf("missing %q", k)
		}
	}
}
