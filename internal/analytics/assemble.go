package analytics

import (
	"fmt"

	"smartspend/internal/core"
)

// PreviewInsight opens the insight list of a locally computed summary.
const PreviewInsight = "Client-side preview mode enabled."

// InsightProvider supplies precomputed insight sentences for a record set.
// Its output is appended to the summary verbatim.
type InsightProvider interface {
	Insights(records []core.Transaction) []string
}

// Options controls summary assembly.
type Options struct {
	// Local adds the preview notice and the total-spend sentence.
	Local bool
	// CurrencySymbol prefixes amounts in generated sentences; "R" when empty.
	CurrencySymbol string
	// Insights are appended after the local sentences, in order.
	Insights []string
	// Provider, when set, contributes further sentences after Insights.
	Provider InsightProvider
}

func (o Options) symbol() string {
	if o.CurrencySymbol == "" {
		return "R"
	}
	return o.CurrencySymbol
}

// Assemble composes the pipeline outputs into a Summary. It returns false
// when m holds no records, so callers can tell "nothing to analyze" apart
// from a summary whose totals are zero.
func Assemble(m Metrics, agg Aggregates, an Anomalies, opts Options) (core.Summary, bool) {
	if len(m.Sorted) == 0 {
		return core.Summary{}, false
	}

	s := core.Summary{
		Total:             m.Total,
		Average:           m.Average,
		Prediction:        agg.Prediction,
		AnomalyCount:      an.Count,
		StrongestCategory: agg.StrongestCategory,
		Threshold:         core.Round2(an.Threshold),

		Categories:     agg.Categories,
		CategoryTotals: agg.CategoryTotals,
		Months:         agg.Months,
		Monthly:        agg.Monthly,

		Dates:        m.Dates,
		Amounts:      m.Amounts,
		Cumulative:   m.Cumulative,
		Rolling:      m.Rolling,
		Velocity:     m.Velocity,
		AnomalyFlags: an.Flags,

		VolatilityLabels: agg.VolatilityLabels,
		VolatilityValues: agg.VolatilityValues,
		ExpenseLabels:    agg.ExpenseLabels,
		ExpenseValues:    agg.ExpenseValues,

		Insights: []string{},
	}

	if opts.Local {
		s.Insights = append(s.Insights,
			PreviewInsight,
			fmt.Sprintf("Total spend %s from %d rows.", core.Currency(opts.symbol(), m.rawTotal), len(m.Sorted)),
		)
	}
	s.Insights = append(s.Insights, opts.Insights...)
	if opts.Provider != nil {
		s.Insights = append(s.Insights, opts.Provider.Insights(m.Sorted)...)
	}

	// Callers get their own copy; nothing above is shared with m or agg.
	return s.Clone(), true
}
