package analytics

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"smartspend/internal/core"
)

const sampleCSV = "date,amount,category\n2024-01-05,100,Food\n2024-01-20,50,Food\n2024-02-03,200,Rent\n"

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tx(raw string, amount float64, category string) core.Transaction {
	d, ok := ParseDate(raw)
	if !ok {
		panic("bad test date " + raw)
	}
	return core.Transaction{RawDate: raw, Date: d, Amount: amount, Category: category}
}

func TestAnalyzeHappyPath(t *testing.T) {
	s, ok, err := Analyze(sampleCSV, Options{Local: true})
	if err != nil || !ok {
		t.Fatalf("expected summary, ok=%v err=%v", ok, err)
	}

	if s.Total != 350 || s.Average != 116.67 || s.Prediction != 200 {
		t.Fatalf("unexpected scalars: total=%v average=%v prediction=%v", s.Total, s.Average, s.Prediction)
	}
	if s.StrongestCategory != "Rent" || s.AnomalyCount != 0 {
		t.Fatalf("unexpected strongest=%q anomalies=%d", s.StrongestCategory, s.AnomalyCount)
	}

	checks := []struct {
		name      string
		got, want any
	}{
		{"categories", s.Categories, []string{"Food", "Rent"}},
		{"category_totals", s.CategoryTotals, []float64{150, 200}},
		{"months", s.Months, []string{"Jan 2024", "Feb 2024"}},
		{"monthly", s.Monthly, []float64{150, 200}},
		{"dates", s.Dates, []string{"2024-01-05", "2024-01-20", "2024-02-03"}},
		{"amounts", s.Amounts, []float64{100, 50, 200}},
		{"cumulative", s.Cumulative, []float64{100, 150, 350}},
		{"rolling", s.Rolling, []float64{100, 75, 116.67}},
		{"velocity", s.Velocity, []float64{0, -50, 150}},
		{"anomaly_flags", s.AnomalyFlags, []bool{false, false, false}},
		{"insights", s.Insights, []string{PreviewInsight, "Total spend R 350.00 from 3 rows."}},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestAnalyzeMissingColumns(t *testing.T) {
	s, ok, err := Analyze("foo,bar\n1,2\n", Options{Local: true})
	if !errors.Is(err, core.ErrMissingColumns) {
		t.Fatalf("expected ErrMissingColumns, got %v", err)
	}
	if ok || s.Len() != 0 {
		t.Fatalf("expected no summary, got ok=%v len=%d", ok, s.Len())
	}
}

func TestAnalyzeNoData(t *testing.T) {
	for _, text := range []string{"", "date,amount", "date,amount\n,5\n2024-01-01,x\n"} {
		_, ok, err := Analyze(text, Options{Local: true})
		if err != nil {
			t.Fatalf("%q: unexpected error %v", text, err)
		}
		if ok {
			t.Fatalf("%q: expected no-data signal", text)
		}
	}
}

func TestNegativeAmountsExcludedFromTotal(t *testing.T) {
	s, ok, err := Analyze("date,amount,category\n2024-01-01,100,Food\n2024-01-02,-30,Refund\n", Options{Local: true})
	if err != nil || !ok {
		t.Fatalf("expected summary, ok=%v err=%v", ok, err)
	}
	if s.Total != 100 {
		t.Fatalf("total must ignore negatives, got %v", s.Total)
	}
	if s.Average != 50 {
		t.Fatalf("average divides by all records, got %v", s.Average)
	}
	if !reflect.DeepEqual(s.Cumulative, []float64{100, 70}) {
		t.Fatalf("cumulative uses signed amounts, got %v", s.Cumulative)
	}
	if !reflect.DeepEqual(s.CategoryTotals, []float64{100, -30}) {
		t.Fatalf("category totals use signed amounts, got %v", s.CategoryTotals)
	}
}

func TestAnalyzeKeepsDayFirstAndUndatedRows(t *testing.T) {
	text := "date,amount,category\n" +
		"15/01/2024,100,Food\n" +
		"later,10,Misc\n" +
		"2024.01.20,40,Food\n" +
		"2024-02-01,50,Food\n"
	s, ok, err := Analyze(text, Options{Local: true})
	if err != nil || !ok {
		t.Fatalf("expected summary, ok=%v err=%v", ok, err)
	}
	if s.Total != 200 || s.Len() != 4 {
		t.Fatalf("total = %v over %d records, want 200 over 4", s.Total, s.Len())
	}
	if !reflect.DeepEqual(s.Dates, []string{"15/01/2024", "2024.01.20", "2024-02-01", "later"}) {
		t.Fatalf("undated rows must sort last, got %v", s.Dates)
	}
	if !reflect.DeepEqual(s.Months, []string{"Jan 2024", "Feb 2024", UndatedMonth}) ||
		!reflect.DeepEqual(s.Monthly, []float64{140, 50, 10}) {
		t.Fatalf("unexpected months %v monthly %v", s.Months, s.Monthly)
	}
	if s.Prediction != 50 {
		t.Fatalf("prediction must come from the last dated month, got %v", s.Prediction)
	}
	if !reflect.DeepEqual(s.Categories, []string{"Food", "Misc"}) ||
		!reflect.DeepEqual(s.CategoryTotals, []float64{190, 10}) {
		t.Fatalf("unexpected categories %v %v", s.Categories, s.CategoryTotals)
	}
	if len(s.Insights) < 2 || s.Insights[1] != "Total spend R 200.00 from 4 rows." {
		t.Fatalf("unexpected insights %v", s.Insights)
	}
}

func TestAggregatePredictionWhenAllUndated(t *testing.T) {
	agg := Aggregate([]core.Transaction{
		{RawDate: "soon", Amount: 5, Category: "A"},
		{RawDate: "later", Amount: 7, Category: "A"},
	})
	if !reflect.DeepEqual(agg.Months, []string{UndatedMonth}) || agg.Prediction != 12 {
		t.Fatalf("unexpected months %v prediction %v", agg.Months, agg.Prediction)
	}
}

func TestComputeMetricsSortsStably(t *testing.T) {
	records := []core.Transaction{
		tx("2024-03-01", 3, "C"),
		tx("2024-01-01", 1, "A"),
		tx("2024-03-01", 4, "D"),
		tx("2024-02-01", 2, "B"),
	}
	m, ok := ComputeMetrics(records)
	if !ok {
		t.Fatal("expected metrics")
	}
	if !reflect.DeepEqual(m.Amounts, []float64{1, 2, 3, 4}) {
		t.Fatalf("unexpected order: %v", m.Amounts)
	}
	if records[0].Category != "C" {
		t.Fatal("input slice must not be reordered")
	}
	for i := 1; i < len(m.Sorted); i++ {
		if m.Sorted[i].Date.Before(m.Sorted[i-1].Date) {
			t.Fatalf("dates not ascending at %d", i)
		}
	}
}

func TestComputeMetricsEmpty(t *testing.T) {
	if _, ok := ComputeMetrics(nil); ok {
		t.Fatal("expected no-data signal for empty input")
	}
}

func TestRollingWindow(t *testing.T) {
	var records []core.Transaction
	for i := 1; i <= 6; i++ {
		records = append(records, core.Transaction{RawDate: "x", Date: day(2024, 1, i), Amount: float64(i), Category: "A"})
	}
	m, _ := ComputeMetrics(records)
	want := []float64{1, 1.5, 2, 2.5, 3.5, 4.5}
	if !reflect.DeepEqual(m.Rolling, want) {
		t.Fatalf("rolling: got %v, want %v", m.Rolling, want)
	}
	for i := range m.Rolling {
		if w := rollingWidth(i); w != min(i+1, 4) {
			t.Fatalf("width at %d: %d", i, w)
		}
	}
}

func TestVelocityAndCumulative(t *testing.T) {
	records := []core.Transaction{
		tx("2024-01-01", 10.005, "A"),
		tx("2024-01-02", 0.1, "A"),
		tx("2024-01-03", 0.2, "B"),
		tx("2024-01-04", -7.3, "B"),
	}
	m, _ := ComputeMetrics(records)
	if m.Velocity[0] != 0 {
		t.Fatalf("velocity[0] must be 0, got %v", m.Velocity[0])
	}
	for i := 1; i < len(records); i++ {
		want := core.Round2(m.Sorted[i].Amount - m.Sorted[i-1].Amount)
		if m.Velocity[i] != want {
			t.Fatalf("velocity[%d]=%v, want %v", i, m.Velocity[i], want)
		}
	}
	var sum float64
	for _, r := range records {
		sum += r.Amount
	}
	last := m.Cumulative[len(m.Cumulative)-1]
	if math.Abs(last-sum) > 0.01 {
		t.Fatalf("cumulative[last]=%v, signed sum %v", last, sum)
	}
}

func TestCategoryConservation(t *testing.T) {
	records := []core.Transaction{
		tx("2024-01-01", 12.345, "Food"),
		tx("2024-01-05", 99.99, "Rent"),
		tx("2024-02-01", -3.333, "Food"),
		tx("2024-02-02", 7.777, "Fuel"),
		tx("2024-03-09", 0.004, "Rent"),
	}
	m, _ := ComputeMetrics(records)
	agg := Aggregate(m.Sorted)

	var signed, cats, months float64
	for _, r := range records {
		signed += r.Amount
	}
	for _, v := range agg.CategoryTotals {
		cats += v
	}
	for _, v := range agg.Monthly {
		months += v
	}
	if tol := 0.01 * float64(len(agg.Categories)); math.Abs(cats-signed) > tol {
		t.Fatalf("category totals %v drift from %v", cats, signed)
	}
	if tol := 0.01 * float64(len(agg.Months)); math.Abs(months-signed) > tol {
		t.Fatalf("monthly totals %v drift from %v", months, signed)
	}
	if len(agg.Categories) != len(agg.CategoryTotals) || len(agg.Months) != len(agg.Monthly) {
		t.Fatal("label and value series must align")
	}
}

func TestAggregateStrongestCategory(t *testing.T) {
	tie := Aggregate([]core.Transaction{tx("2024-01-01", 100, "Food"), tx("2024-01-02", 100, "Rent")})
	if tie.StrongestCategory != "Food" {
		t.Fatalf("ties resolve to first seen, got %q", tie.StrongestCategory)
	}
	neg := Aggregate([]core.Transaction{tx("2024-01-01", -5, "Refund"), tx("2024-01-02", -1, "Fee")})
	if neg.StrongestCategory != "Fee" {
		t.Fatalf("largest signed total wins, got %q", neg.StrongestCategory)
	}
	if empty := Aggregate(nil); empty.StrongestCategory != core.DefaultCategory || empty.Prediction != 0 {
		t.Fatalf("unexpected empty aggregate: %+v", empty)
	}
}

func TestAggregateMonthsFollowDataOrder(t *testing.T) {
	agg := Aggregate(SortByDate([]core.Transaction{
		tx("2024-01-10", 5, "A"),
		tx("2023-12-31", 1, "A"),
		tx("2024-01-01", 2, "A"),
	}))
	if !reflect.DeepEqual(agg.Months, []string{"Dec 2023", "Jan 2024"}) {
		t.Fatalf("unexpected months %v", agg.Months)
	}
	if !reflect.DeepEqual(agg.Monthly, []float64{1, 7}) || agg.Prediction != 7 {
		t.Fatalf("unexpected monthly %v prediction %v", agg.Monthly, agg.Prediction)
	}
}

func TestAggregateVolatilityAndExpenseSplit(t *testing.T) {
	agg := Aggregate([]core.Transaction{
		tx("2024-01-01", 100, "Food"),
		tx("2024-01-02", 200, "housing"),
		tx("2024-01-03", 50, "Food"),
		tx("2024-01-04", -20, "Food"),
		tx("2024-01-05", 30, "Utilities"),
	})
	if !reflect.DeepEqual(agg.VolatilityLabels, []string{"Food", "housing", "Utilities"}) {
		t.Fatalf("unexpected volatility labels %v", agg.VolatilityLabels)
	}
	// Food: 100, 50, -20 -> mean 43.33, sample std 60.28; singletons are 0.
	if !reflect.DeepEqual(agg.VolatilityValues, []float64{60.28, 0, 0}) {
		t.Fatalf("unexpected volatility values %v", agg.VolatilityValues)
	}
	if !reflect.DeepEqual(agg.ExpenseLabels, []string{"Variable", "Fixed"}) {
		t.Fatalf("unexpected expense labels %v", agg.ExpenseLabels)
	}
	if !reflect.DeepEqual(agg.ExpenseValues, []float64{150, 230}) {
		t.Fatalf("unexpected expense values %v", agg.ExpenseValues)
	}
}

func TestDetectAnomalies(t *testing.T) {
	amounts := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 1000}
	a := DetectAnomalies(amounts)
	if a.Count != 1 || !a.Flags[9] {
		t.Fatalf("expected the outlier flagged, got %+v", a)
	}
	if a.Threshold != a.Mean+2*a.StdDev {
		t.Fatalf("threshold must be mean + 2 std")
	}
	for i, v := range amounts {
		if a.Flags[i] != (v > a.Threshold) {
			t.Fatalf("flag %d inconsistent with threshold", i)
		}
	}

	again := DetectAnomalies(amounts)
	if again.Threshold != a.Threshold || again.Count != a.Count {
		t.Fatal("detection must be deterministic")
	}
}

func TestDetectAnomaliesDegenerate(t *testing.T) {
	cases := []struct {
		name    string
		amounts []float64
	}{
		{"empty", nil},
		{"single", []float64{42}},
		{"constant", []float64{5, 5, 5, 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := DetectAnomalies(tc.amounts)
			if a.Count != 0 {
				t.Fatalf("expected no anomalies, got %d", a.Count)
			}
			if math.IsNaN(a.Threshold) || math.IsNaN(a.StdDev) {
				t.Fatal("degenerate input must not produce NaN")
			}
			if len(a.Flags) != len(tc.amounts) {
				t.Fatalf("expected %d flags, got %d", len(tc.amounts), len(a.Flags))
			}
		})
	}
}

type stubProvider struct{ lines []string }

func (p stubProvider) Insights([]core.Transaction) []string { return p.lines }

func TestAssembleInsightsOrder(t *testing.T) {
	records, _ := Ingest(sampleCSV)

	remote, ok := Summarize(records, Options{Provider: stubProvider{[]string{"b", "a"}}})
	if !ok {
		t.Fatal("expected summary")
	}
	if !reflect.DeepEqual(remote.Insights, []string{"b", "a"}) {
		t.Fatalf("provider insights must pass through verbatim, got %v", remote.Insights)
	}

	local, _ := Summarize(records, Options{
		Local:          true,
		CurrencySymbol: "$",
		Insights:       []string{"extra"},
		Provider:       stubProvider{[]string{"last"}},
	})
	want := []string{PreviewInsight, "Total spend $ 350.00 from 3 rows.", "extra", "last"}
	if !reflect.DeepEqual(local.Insights, want) {
		t.Fatalf("got %v, want %v", local.Insights, want)
	}

	plain, _ := Summarize(records, Options{})
	if plain.Insights == nil || len(plain.Insights) != 0 {
		t.Fatalf("expected empty non-nil insights, got %#v", plain.Insights)
	}
}

func TestAssembleReturnsIndependentCopy(t *testing.T) {
	records, _ := Ingest(sampleCSV)
	m, _ := ComputeMetrics(records)
	agg := Aggregate(m.Sorted)
	an := DetectAnomalies(m.Amounts)

	s, ok := Assemble(m, agg, an, Options{Local: true})
	if !ok {
		t.Fatal("expected summary")
	}
	s.Cumulative[0] = -1
	s.Categories[0] = "changed"
	if m.Cumulative[0] != 100 || agg.Categories[0] != "Food" {
		t.Fatal("assembled summary must not alias pipeline state")
	}

	if _, ok := Assemble(Metrics{}, Aggregates{}, Anomalies{}, Options{Local: true}); ok {
		t.Fatal("empty metrics must signal no result")
	}
}

func TestAnalyzeConcurrent(t *testing.T) {
	want, _, _ := Analyze(sampleCSV, Options{Local: true})
	done := make(chan core.Summary)
	for i := 0; i < 8; i++ {
		go func() {
			s, _, _ := Analyze(sampleCSV, Options{Local: true})
			done <- s
		}()
	}
	for i := 0; i < 8; i++ {
		if got := <-done; !reflect.DeepEqual(got, want) {
			t.Fatalf("concurrent run diverged: %+v", got)
		}
	}
}
