// Package insights produces the server-side insight sentences shown on the
// dashboard after an upload. Unlike the local pipeline it normalizes
// category names, ignores refunds and projects next month's spend with a
// least-squares line.
package insights

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"smartspend/internal/analytics"
	"smartspend/internal/core"
)

// NoForecastInsight replaces the forecast sentence when fewer than two
// months of data are available.
const NoForecastInsight = "Upload more monthly data for stronger forecasting."

type alias struct{ key, category string }

// aliases are matched as substrings of the lower-cased category, in order.
var aliases = []alias{
	{"uber", "Transport"},
	{"taxi", "Transport"},
	{"bus", "Transport"},
	{"fuel", "Transport"},
	{"rent", "Housing"},
	{"mortgage", "Housing"},
	{"grocery", "Groceries"},
	{"supermarket", "Groceries"},
	{"restaurant", "Dining"},
	{"coffee", "Dining"},
	{"netflix", "Subscriptions"},
	{"spotify", "Subscriptions"},
	{"electric", "Utilities"},
	{"water", "Utilities"},
	{"medical", "Healthcare"},
	{"pharmacy", "Healthcare"},
	{"tuition", "Education"},
	{"course", "Education"},
}

// NormalizeCategory maps free-form category text onto a canonical name.
func NormalizeCategory(raw string) string {
	val := strings.ToLower(strings.TrimSpace(raw))
	if val == "" {
		return core.DefaultCategory
	}
	for _, a := range aliases {
		if strings.Contains(val, a.key) {
			return a.category
		}
	}
	return cases.Title(language.Und).String(val)
}

// Report is the server-side view of an upload.
type Report struct {
	Total             float64
	Average           float64
	Prediction        float64
	Anomalies         int
	StrongestCategory string
	Months            []string
	Monthly           []float64
}

// Provider computes server-side insights. It satisfies
// analytics.InsightProvider.
type Provider struct {
	CurrencySymbol string
}

// NewProvider returns a Provider formatting amounts with symbol.
func NewProvider(symbol string) *Provider {
	return &Provider{CurrencySymbol: symbol}
}

// Insights returns the four dashboard sentences for records.
func (p *Provider) Insights(records []core.Transaction) []string {
	return p.Sentences(Analyze(records))
}

// Sentences renders r in display order.
func (p *Provider) Sentences(r Report) []string {
	symbol := p.CurrencySymbol
	if symbol == "" {
		symbol = "R"
	}
	forecast := NoForecastInsight
	if r.Prediction != 0 {
		forecast = fmt.Sprintf("Forecasted next month spend: %s.", core.Currency(symbol, r.Prediction))
	}
	return []string{
		fmt.Sprintf("Your highest spend category is %s.", r.StrongestCategory),
		fmt.Sprintf("Average transaction value is %s.", core.Currency(symbol, r.Average)),
		forecast,
		fmt.Sprintf("Detected %d unusual transaction(s).", r.Anomalies),
	}
}

// Analyze builds a Report. Negative amounts count as zero spend.
func Analyze(records []core.Transaction) Report {
	r := Report{StrongestCategory: core.DefaultCategory}
	if len(records) == 0 {
		return r
	}

	sorted := analytics.SortByDate(records)
	amounts := make([]float64, len(sorted))
	var order []string
	totals := make(map[string]float64)
	for i, tx := range sorted {
		amounts[i] = math.Max(0, tx.Amount)
		cat := NormalizeCategory(tx.Category)
		if _, ok := totals[cat]; !ok {
			order = append(order, cat)
		}
		totals[cat] += amounts[i]
	}

	var total float64
	for _, a := range amounts {
		total += a
	}
	r.Total = core.Round2(total)
	r.Average = core.Round2(total / float64(len(amounts)))

	bestSum := math.Inf(-1)
	for _, cat := range order {
		if totals[cat] > bestSum {
			r.StrongestCategory, bestSum = cat, totals[cat]
		}
	}

	r.Months, r.Monthly = monthlyTotals(sorted)
	r.Prediction = core.Round2(Forecast(r.Monthly))

	if len(amounts) > 1 {
		std := analytics.SampleStdDev(amounts)
		if std > 0 {
			r.Anomalies = analytics.DetectAnomalies(amounts).Count
		}
	}
	return r
}

// monthlyTotals sums non-negative spend per calendar month from the first
// to the last month present. Months without records are zero. Undated
// records, which sort last, are left out.
func monthlyTotals(sorted []core.Transaction) ([]string, []float64) {
	n := len(sorted)
	for n > 0 && !sorted[n-1].Dated() {
		n--
	}
	if n == 0 {
		return nil, nil
	}
	sorted = sorted[:n]

	first := monthStart(sorted[0].Date)
	last := monthStart(sorted[len(sorted)-1].Date)

	var labels []string
	index := make(map[time.Time]int)
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		index[m] = len(labels)
		labels = append(labels, m.Format(analytics.MonthLayout))
	}
	sums := make([]float64, len(labels))
	for _, tx := range sorted {
		sums[index[monthStart(tx.Date)]] += math.Max(0, tx.Amount)
	}
	for i := range sums {
		sums[i] = core.Round2(sums[i])
	}
	return labels, sums
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Forecast fits y = a + b·x over points indexed 0..n-1 and evaluates it at
// x = n. Fewer than two points yield 0.
func Forecast(points []float64) float64 {
	slope, intercept, ok := linearRegression(points)
	if !ok {
		return 0
	}
	return intercept + slope*float64(len(points))
}

func linearRegression(points []float64) (slope, intercept float64, ok bool) {
	n := float64(len(points))
	if n < 2 {
		return 0, 0, false
	}
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range points {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, 0, false
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept, true
}
