// Package analytics turns an uploaded transaction export into the dashboard
// summary: rows are ingested and validated, sorted by date, reduced to
// running series and per-category and per-month totals, screened for
// outliers and finally assembled into a core.Summary.
//
// Every function here is pure and synchronous. There is no package-level
// mutable state, so concurrent uploads never interfere.
package analytics

import "smartspend/internal/core"

// Analyze runs the whole pipeline over raw delimited text.
//
// The error is non-nil only for core.ErrMissingColumns. When no usable
// record survives ingestion ok is false and the summary is zero-valued.
func Analyze(text string, opts Options) (summary core.Summary, ok bool, err error) {
	summary, _, ok, err = AnalyzeWithStats(text, opts)
	return summary, ok, err
}

// AnalyzeWithStats is Analyze that also returns ingestion counts.
func AnalyzeWithStats(text string, opts Options) (core.Summary, IngestStats, bool, error) {
	records, stats, err := IngestWithStats(text)
	if err != nil {
		return core.Summary{}, stats, false, err
	}
	summary, ok := Summarize(records, opts)
	return summary, stats, ok, nil
}

// Summarize runs the pipeline from already ingested records.
func Summarize(records []core.Transaction, opts Options) (core.Summary, bool) {
	m, ok := ComputeMetrics(records)
	if !ok {
		return core.Summary{}, false
	}
	agg := Aggregate(m.Sorted)
	an := DetectAnomalies(m.Amounts)
	return Assemble(m, agg, an, opts)
}
