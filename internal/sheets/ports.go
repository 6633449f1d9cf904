package sheets

import (
	"context"

	"smartspend/internal/core"
)

// Ports for outbound adapters.
type (
	// AnalysisExporter appends the headline of a saved analysis to a
	// spreadsheet. Exporting the same Ref twice must not add a second row.
	AnalysisExporter interface {
		ExportAnalysis(ctx context.Context, a core.Analysis) (rowRef string, err error)
	}
)
