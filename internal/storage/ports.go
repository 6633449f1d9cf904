package storage

import (
	"context"

	"smartspend/internal/core"
)

// Ports implemented by the SQLite repository and the in-memory store.
type (
	AnalysisWriter interface {
		// SaveAnalysis stores a and returns it with ID, Ref and CreatedAt set.
		SaveAnalysis(ctx context.Context, a core.Analysis) (core.Analysis, error)
	}

	AnalysisReader interface {
		GetAnalysis(ctx context.Context, ref string) (core.Analysis, error)
		// ListAnalyses returns the newest analyses first. An empty email
		// lists every owner.
		ListAnalyses(ctx context.Context, email string, limit int) ([]core.Analysis, error)
	}

	// ExportQueue tracks which analyses still need to reach the spreadsheet.
	ExportQueue interface {
		GetAnalysisByID(ctx context.Context, id int64) (core.Analysis, error)
		PendingExports(ctx context.Context, limit int) ([]core.Analysis, error)
		MarkExported(ctx context.Context, id int64) error
		MarkExportError(ctx context.Context, id int64) error
	}

	ProfileStore interface {
		UpsertProfile(ctx context.Context, p core.Profile) (core.Profile, error)
		GetProfile(ctx context.Context, email string) (core.Profile, error)
	}

	// Repository is everything the HTTP server and workers need from storage.
	Repository interface {
		AnalysisWriter
		AnalysisReader
		ExportQueue
		ProfileStore
		Close() error
	}
)
