package analytics

import (
	"math"
	"slices"

	"smartspend/internal/core"
)

// RollingWindow is the number of trailing records averaged by the rolling series.
const RollingWindow = 4

// Metrics holds the chronologically ordered series derived from a record set.
type Metrics struct {
	Sorted []core.Transaction // input records, stable-sorted by date

	Total   float64 // sum of non-negative amounts, rounded
	Average float64 // Total / len(Sorted), rounded

	Dates      []string
	Amounts    []float64
	Cumulative []float64
	Rolling    []float64
	Velocity   []float64

	rawTotal float64
}

// ComputeMetrics sorts records by date and derives the running series.
// The input slice is not modified. It returns false when records is empty.
func ComputeMetrics(records []core.Transaction) (Metrics, bool) {
	if len(records) == 0 {
		return Metrics{}, false
	}

	sorted := SortByDate(records)
	n := len(sorted)
	m := Metrics{
		Sorted:     sorted,
		Dates:      make([]string, n),
		Amounts:    make([]float64, n),
		Cumulative: make([]float64, n),
		Rolling:    make([]float64, n),
		Velocity:   make([]float64, n),
	}

	var running float64
	for i, tx := range sorted {
		m.Dates[i] = tx.RawDate
		m.Amounts[i] = tx.Amount
		m.rawTotal += math.Max(0, tx.Amount)

		running += tx.Amount
		m.Cumulative[i] = core.Round2(running)

		m.Rolling[i] = core.Round2(windowMean(sorted, i))

		if i > 0 {
			m.Velocity[i] = core.Round2(tx.Amount - sorted[i-1].Amount)
		}
	}

	m.Total = core.Round2(m.rawTotal)
	m.Average = core.Round2(m.rawTotal / float64(n))
	return m, true
}

// rollingWidth is the number of records in the window ending at index i.
func rollingWidth(i int) int {
	return min(i+1, RollingWindow)
}

func windowMean(sorted []core.Transaction, i int) float64 {
	var sum float64
	for _, tx := range sorted[i-rollingWidth(i)+1 : i+1] {
		sum += tx.Amount
	}
	return sum / float64(rollingWidth(i))
}

// SortByDate returns a copy of records in ascending date order. Undated
// records follow the dated ones. Records with equal dates keep their
// relative order.
func SortByDate(records []core.Transaction) []core.Transaction {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b core.Transaction) int {
		switch {
		case a.Dated() && b.Dated():
			return a.Date.Compare(b.Date)
		case a.Dated():
			return -1
		case b.Dated():
			return 1
		}
		return 0
	})
	return sorted
}
