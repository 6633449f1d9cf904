package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"smartspend/internal/core"
	ports "smartspend/internal/sheets"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultSheetName is the base tab name; the analysis year is prefixed.
const DefaultSheetName = "Analyses"

// Header is written to row 1 of a fresh tab.
var Header = []any{"Created", "Ref", "Email", "Total", "Average", "Prediction", "Anomalies", "Strongest category"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string

	mu     sync.Mutex
	sheets map[string]*sheetState
}

// sheetState caches what a tab already holds.
type sheetState struct {
	rows int
	refs map[string]struct{}
}

var _ ports.AnalysisExporter = (*Client)(nil)

// Config selects the spreadsheet and the service account used to write it.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// ConfigFromEnv reads GOOGLE_SPREADSHEET_ID, GOOGLE_SHEET_NAME and the
// service account variables.
func ConfigFromEnv() Config {
	cfg := Config{
		SpreadsheetID:   strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		SheetName:       strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME")),
		CredentialsJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		CredentialsFile: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")),
	}
	if cfg.CredentialsJSON == "" && cfg.CredentialsFile == "" {
		cfg.CredentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return cfg
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an existing service, e.g. one pointed at a test server.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = DefaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     strings.TrimSpace(sheetName),
		sheets:        make(map[string]*sheetState),
	}
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case cfg.CredentialsJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case cfg.CredentialsFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", cfg.CredentialsFile)
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportAnalysis appends one row for a to the tab of its creation year.
// A Ref already present in the tab is not appended again.
func (c *Client) ExportAnalysis(ctx context.Context, a core.Analysis) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if a.Ref == "" {
		return "", errors.New("analysis without ref")
	}

	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	sheet := yearPrefixedName(c.sheetBase, created.Year())

	state, err := c.sheetState(ctx, sheet)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	_, seen := state.refs[a.Ref]
	needHeader := state.rows == 0
	c.mu.Unlock()
	if seen {
		slog.InfoContext(ctx, "Analysis already exported, skipping", "ref", a.Ref, "sheet", sheet)
		return sheet, nil
	}

	values := [][]any{}
	if needHeader {
		values = append(values, Header)
	}
	values = append(values, rowValues(a, created))

	rng := a1(sheet, "A:H")
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", sheet, err)
	}

	c.mu.Lock()
	state.refs[a.Ref] = struct{}{}
	state.rows += len(values)
	c.mu.Unlock()

	ref := sheet
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "Analysis exported to Google Sheets", "ref", a.Ref, "range", ref)
	return ref, nil
}

// sheetState loads the Ref column of sheet once, creating the tab when the
// spreadsheet does not have it yet.
func (c *Client) sheetState(ctx context.Context, sheet string) (*sheetState, error) {
	c.mu.Lock()
	state, ok := c.sheets[sheet]
	c.mu.Unlock()
	if ok {
		return state, nil
	}

	rng := a1(sheet, "B:B")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	var values [][]interface{}
	switch {
	case err == nil:
		values = resp.Values
	case isMissingSheet(err):
		if err := c.addSheet(ctx, sheet); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	state = &sheetState{rows: len(values), refs: parseRefs(values)}
	c.mu.Lock()
	c.sheets[sheet] = state
	c.mu.Unlock()
	return state, nil
}

func (c *Client) addSheet(ctx context.Context, sheet string) error {
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", sheet, err)
	}
	slog.InfoContext(ctx, "Created sheet tab", "sheet", sheet)
	return nil
}

// isMissingSheet reports the 400 the API returns for a range on an unknown tab.
func isMissingSheet(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusBadRequest &&
		strings.Contains(gerr.Message, "Unable to parse range")
}

// a1 builds an A1 range on a quoted tab name.
func a1(sheet, cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(sheet, "'", "''"), cells)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
