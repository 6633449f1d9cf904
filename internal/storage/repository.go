package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"smartspend/internal/core"

	_ "modernc.org/sqlite"
)

// DefaultListLimit caps ListAnalyses when the caller passes no limit.
const DefaultListLimit = 20

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY under concurrent uploads.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) SaveAnalysis(ctx context.Context, a core.Analysis) (core.Analysis, error) {
	a = a.Normalize()
	if err := a.Validate(); err != nil {
		return core.Analysis{}, fmt.Errorf("validate analysis: %w", err)
	}
	if a.Ref == "" {
		a.Ref = uuid.NewString()
	}

	row, err := r.queries.CreateAnalysis(ctx, CreateAnalysisParams{
		Ref:               a.Ref,
		Email:             sql.NullString{String: a.Email, Valid: a.Email != ""},
		Total:             a.Total,
		Average:           a.Average,
		Prediction:        a.Prediction,
		Anomalies:         int64(a.Anomalies),
		StrongestCategory: a.StrongestCategory,
		Payload:           a.Payload,
		ExportStatus:      string(a.ExportStatus),
		CreatedAt:         r.now(),
	})
	if err != nil {
		return core.Analysis{}, fmt.Errorf("create analysis: %w", err)
	}

	slog.InfoContext(ctx, "Analysis saved to SQLite",
		"id", row.ID,
		"ref", row.Ref,
		"total", row.Total,
		"anomalies", row.Anomalies)

	return toAnalysis(row), nil
}

func (r *SQLiteRepository) GetAnalysis(ctx context.Context, ref string) (core.Analysis, error) {
	row, err := r.queries.GetAnalysisByRef(ctx, ref)
	if err != nil {
		return core.Analysis{}, notFound(err, "get analysis %s", ref)
	}
	return toAnalysis(row), nil
}

func (r *SQLiteRepository) GetAnalysisByID(ctx context.Context, id int64) (core.Analysis, error) {
	row, err := r.queries.GetAnalysis(ctx, id)
	if err != nil {
		return core.Analysis{}, notFound(err, "get analysis by id %d", id)
	}
	return toAnalysis(row), nil
}

func (r *SQLiteRepository) ListAnalyses(ctx context.Context, email string, limit int) ([]core.Analysis, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var (
		rows []AnalysisRow
		err  error
	)
	if email = core.NormalizeEmail(email); email == "" {
		rows, err = r.queries.ListAnalyses(ctx, int64(limit))
	} else {
		rows, err = r.queries.ListAnalysesByEmail(ctx, email, int64(limit))
	}
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return toAnalyses(rows), nil
}

// PendingExports returns analyses not yet exported, including ones whose
// last export attempt failed, oldest first.
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]core.Analysis, error) {
	rows, err := r.queries.GetPendingExports(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending exports: %w", err)
	}
	return toAnalyses(rows), nil
}

func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64) error {
	if err := r.setExportStatus(ctx, id, core.ExportDone); err != nil {
		return fmt.Errorf("mark analysis exported: %w", err)
	}
	slog.InfoContext(ctx, "Analysis marked as exported", "id", id)
	return nil
}

func (r *SQLiteRepository) MarkExportError(ctx context.Context, id int64) error {
	if err := r.setExportStatus(ctx, id, core.ExportFailed); err != nil {
		return fmt.Errorf("mark analysis export error: %w", err)
	}
	slog.WarnContext(ctx, "Analysis marked with export error", "id", id)
	return nil
}

func (r *SQLiteRepository) setExportStatus(ctx context.Context, id int64, status core.ExportStatus) error {
	n, err := r.queries.SetExportStatus(ctx, id, string(status))
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) UpsertProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return core.Profile{}, err
	}

	row, err := r.queries.UpsertProfile(ctx, UpsertProfileParams{
		Email:      p.Email,
		Name:       p.Name,
		Occupation: p.Occupation,
		Avatar:     p.Avatar,
		Theme:      p.Theme,
		UpdatedAt:  r.now(),
	})
	if err != nil {
		return core.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return toProfile(row), nil
}

func (r *SQLiteRepository) GetProfile(ctx context.Context, email string) (core.Profile, error) {
	email = core.NormalizeEmail(email)
	if email == "" {
		return core.Profile{}, core.ErrEmptyEmail
	}
	row, err := r.queries.GetProfile(ctx, email)
	if err != nil {
		return core.Profile{}, notFound(err, "get profile")
	}
	return toProfile(row), nil
}

// notFound maps sql.ErrNoRows onto core.ErrNotFound and wraps everything else.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, core.ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func toAnalysis(row AnalysisRow) core.Analysis {
	return core.Analysis{
		ID:                row.ID,
		Ref:               row.Ref,
		Email:             row.Email.String,
		Total:             row.Total,
		Average:           row.Average,
		Prediction:        row.Prediction,
		Anomalies:         int(row.Anomalies),
		StrongestCategory: row.StrongestCategory,
		Payload:           row.Payload,
		ExportStatus:      core.ExportStatus(row.ExportStatus),
		CreatedAt:         row.CreatedAt.Time,
	}
}

func toAnalyses(rows []AnalysisRow) []core.Analysis {
	out := make([]core.Analysis, len(rows))
	for i, row := range rows {
		out[i] = toAnalysis(row)
	}
	return out
}

func toProfile(row ProfileRow) core.Profile {
	return core.Profile{
		Email:      row.Email,
		Name:       row.Name,
		Occupation: row.Occupation,
		Avatar:     row.Avatar,
		Theme:      row.Theme,
		UpdatedAt:  row.UpdatedAt.Time,
	}
}
