package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// AnalysisRow mirrors the analyses table.
type AnalysisRow struct {
	ID                int64
	Ref               string
	Email             sql.NullString
	Total             float64
	Average           float64
	Prediction        float64
	Anomalies         int64
	StrongestCategory string
	Payload           string
	ExportStatus      string
	CreatedAt         sql.NullTime
}

// ProfileRow mirrors the profiles table.
type ProfileRow struct {
	Email      string
	Name       string
	Occupation string
	Avatar     string
	Theme      string
	UpdatedAt  sql.NullTime
}

const analysisColumns = `id, ref, email, total, average, prediction, anomalies, strongest_category, payload, export_status, created_at`

func scanAnalysis(row interface{ Scan(...any) error }) (AnalysisRow, error) {
	var a AnalysisRow
	err := row.Scan(
		&a.ID,
		&a.Ref,
		&a.Email,
		&a.Total,
		&a.Average,
		&a.Prediction,
		&a.Anomalies,
		&a.StrongestCategory,
		&a.Payload,
		&a.ExportStatus,
		&a.CreatedAt,
	)
	return a, err
}

const createAnalysis = `-- name: CreateAnalysis :one
INSERT INTO analyses (ref, email, total, average, prediction, anomalies, strongest_category, payload, export_status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + analysisColumns

type CreateAnalysisParams struct {
	Ref               string
	Email             sql.NullString
	Total             float64
	Average           float64
	Prediction        float64
	Anomalies         int64
	StrongestCategory string
	Payload           string
	ExportStatus      string
	CreatedAt         time.Time
}

func (q *Queries) CreateAnalysis(ctx context.Context, arg CreateAnalysisParams) (AnalysisRow, error) {
	row := q.db.QueryRowContext(ctx, createAnalysis,
		arg.Ref,
		arg.Email,
		arg.Total,
		arg.Average,
		arg.Prediction,
		arg.Anomalies,
		arg.StrongestCategory,
		arg.Payload,
		arg.ExportStatus,
		arg.CreatedAt,
	)
	return scanAnalysis(row)
}

const getAnalysisByRef = `-- name: GetAnalysisByRef :one
SELECT ` + analysisColumns + ` FROM analyses WHERE ref = ?`

func (q *Queries) GetAnalysisByRef(ctx context.Context, ref string) (AnalysisRow, error) {
	return scanAnalysis(q.db.QueryRowContext(ctx, getAnalysisByRef, ref))
}

const getAnalysis = `-- name: GetAnalysis :one
SELECT ` + analysisColumns + ` FROM analyses WHERE id = ?`

func (q *Queries) GetAnalysis(ctx context.Context, id int64) (AnalysisRow, error) {
	return scanAnalysis(q.db.QueryRowContext(ctx, getAnalysis, id))
}

const listAnalyses = `-- name: ListAnalyses :many
SELECT ` + analysisColumns + ` FROM analyses
ORDER BY created_at DESC, id DESC
LIMIT ?`

const listAnalysesByEmail = `-- name: ListAnalysesByEmail :many
SELECT ` + analysisColumns + ` FROM analyses
WHERE email = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`

func (q *Queries) ListAnalyses(ctx context.Context, limit int64) ([]AnalysisRow, error) {
	return q.queryAnalyses(ctx, listAnalyses, limit)
}

func (q *Queries) ListAnalysesByEmail(ctx context.Context, email string, limit int64) ([]AnalysisRow, error) {
	return q.queryAnalyses(ctx, listAnalysesByEmail, email, limit)
}

const getPendingExports = `-- name: GetPendingExports :many
SELECT ` + analysisColumns + ` FROM analyses
WHERE export_status IN ('pending', 'error')
ORDER BY id ASC
LIMIT ?`

func (q *Queries) GetPendingExports(ctx context.Context, limit int64) ([]AnalysisRow, error) {
	return q.queryAnalyses(ctx, getPendingExports, limit)
}

func (q *Queries) queryAnalyses(ctx context.Context, query string, args ...interface{}) ([]AnalysisRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AnalysisRow
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setExportStatus = `-- name: SetExportStatus :execrows
UPDATE analyses SET export_status = ? WHERE id = ?`

func (q *Queries) SetExportStatus(ctx context.Context, id int64, status string) (int64, error) {
	result, err := q.db.ExecContext(ctx, setExportStatus, status, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const upsertProfile = `-- name: UpsertProfile :one
INSERT INTO profiles (email, name, occupation, avatar, theme, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(email) DO UPDATE SET
    name = excluded.name,
    occupation = excluded.occupation,
    avatar = excluded.avatar,
    theme = excluded.theme,
    updated_at = excluded.updated_at
RETURNING email, name, occupation, avatar, theme, updated_at`

type UpsertProfileParams struct {
	Email      string
	Name       string
	Occupation string
	Avatar     string
	Theme      string
	UpdatedAt  time.Time
}

func (q *Queries) UpsertProfile(ctx context.Context, arg UpsertProfileParams) (ProfileRow, error) {
	row := q.db.QueryRowContext(ctx, upsertProfile,
		arg.Email,
		arg.Name,
		arg.Occupation,
		arg.Avatar,
		arg.Theme,
		arg.UpdatedAt,
	)
	var p ProfileRow
	err := row.Scan(&p.Email, &p.Name, &p.Occupation, &p.Avatar, &p.Theme, &p.UpdatedAt)
	return p, err
}

const getProfile = `-- name: GetProfile :one
SELECT email, name, occupation, avatar, theme, updated_at FROM profiles WHERE email = ?`

func (q *Queries) GetProfile(ctx context.Context, email string) (ProfileRow, error) {
	row := q.db.QueryRowContext(ctx, getProfile, email)
	var p ProfileRow
	err := row.Scan(&p.Email, &p.Name, &p.Occupation, &p.Avatar, &p.Theme, &p.UpdatedAt)
	return p, err
}
