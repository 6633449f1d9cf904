package analytics

import (
	"math"
	"strings"

	"smartspend/internal/core"
)

// MonthLayout formats month labels, e.g. "Jan 2024".
const MonthLayout = "Jan 2006"

// UndatedMonth labels the month bucket of records whose date did not parse.
const UndatedMonth = "Undated"

// FixedCategories are recurring commitments; every other category counts as
// variable spend in the expense split.
var FixedCategories = []string{"Housing", "Utilities", "Subscriptions", "Education", "Insurance"}

// Aggregates groups a sorted record set by category and by month.
type Aggregates struct {
	Categories     []string
	CategoryTotals []float64

	Months  []string
	Monthly []float64

	StrongestCategory string
	Prediction        float64 // total of the last dated month label

	VolatilityLabels []string
	VolatilityValues []float64

	ExpenseLabels []string
	ExpenseValues []float64
}

// orderedSums accumulates float sums per key, remembering first-seen order.
type orderedSums struct {
	keys []string
	sums map[string]float64
}

func newOrderedSums() *orderedSums {
	return &orderedSums{sums: make(map[string]float64)}
}

func (o *orderedSums) add(key string, v float64) {
	if _, ok := o.sums[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.sums[key] += v
}

func (o *orderedSums) rounded() []float64 {
	out := make([]float64, len(o.keys))
	for i, k := range o.keys {
		out[i] = core.Round2(o.sums[k])
	}
	return out
}

// Aggregate groups sorted (as returned in Metrics.Sorted) by category and by
// month label. Label order follows data order, not calendar order.
func Aggregate(sorted []core.Transaction) Aggregates {
	byCategory := newOrderedSums()
	byMonth := newOrderedSums()
	bySplit := newOrderedSums()
	amountsByCategory := make(map[string][]float64)

	for _, tx := range sorted {
		cat := tx.Category
		if cat == "" {
			cat = core.DefaultCategory
		}
		byCategory.add(cat, tx.Amount)
		byMonth.add(MonthLabel(tx), tx.Amount)
		bySplit.add(expenseType(cat), math.Max(0, tx.Amount))
		amountsByCategory[cat] = append(amountsByCategory[cat], tx.Amount)
	}

	agg := Aggregates{
		Categories:        append([]string{}, byCategory.keys...),
		CategoryTotals:    byCategory.rounded(),
		Months:            append([]string{}, byMonth.keys...),
		Monthly:           byMonth.rounded(),
		StrongestCategory: strongest(byCategory),
		VolatilityLabels:  append([]string{}, byCategory.keys...),
		VolatilityValues:  make([]float64, len(byCategory.keys)),
		ExpenseLabels:     append([]string{}, bySplit.keys...),
		ExpenseValues:     bySplit.rounded(),
	}
	for i, cat := range byCategory.keys {
		agg.VolatilityValues[i] = core.Round2(SampleStdDev(amountsByCategory[cat]))
	}
	agg.Prediction = lastDatedMonth(agg.Months, agg.Monthly)
	return agg
}

// MonthLabel is the month bucket of tx, UndatedMonth when its date did not
// parse.
func MonthLabel(tx core.Transaction) string {
	if !tx.Dated() {
		return UndatedMonth
	}
	return tx.Date.Format(MonthLayout)
}

// lastDatedMonth returns the last monthly total, skipping the undated bucket
// unless it is the only one.
func lastDatedMonth(months []string, monthly []float64) float64 {
	for i := len(months) - 1; i >= 0; i-- {
		if months[i] != UndatedMonth {
			return monthly[i]
		}
	}
	if n := len(monthly); n > 0 {
		return monthly[n-1]
	}
	return 0
}

// strongest picks the category with the largest unrounded total. On ties the
// earliest first occurrence wins, as a stable descending sort would.
func strongest(o *orderedSums) string {
	best := core.DefaultCategory
	bestSum := math.Inf(-1)
	for _, k := range o.keys {
		if o.sums[k] > bestSum {
			best, bestSum = k, o.sums[k]
		}
	}
	return best
}

func expenseType(category string) string {
	for _, f := range FixedCategories {
		if strings.EqualFold(category, f) {
			return "Fixed"
		}
	}
	return "Variable"
}
