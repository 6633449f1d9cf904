package core

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Summary is the dashboard document produced for one upload. The pipeline
// does not touch a Summary after returning it, and every caller receives
// slices no other Summary shares. The slices are not otherwise protected:
// Clone before handing one Summary to code that modifies it.
type Summary struct {
	Total             float64 `json:"total"`
	Average           float64 `json:"average"`
	Prediction        float64 `json:"prediction"`
	AnomalyCount      int     `json:"anomaly_count"`
	StrongestCategory string  `json:"strongest_category"`
	Threshold         float64 `json:"threshold"`

	Categories     []string  `json:"categories"`
	CategoryTotals []float64 `json:"category_totals"`

	Months  []string  `json:"months"`
	Monthly []float64 `json:"monthly"`

	Dates        []string  `json:"dates"`
	Amounts      []float64 `json:"amounts"`
	Cumulative   []float64 `json:"cumulative"`
	Rolling      []float64 `json:"rolling"`
	Velocity     []float64 `json:"velocity"`
	AnomalyFlags []bool    `json:"anomaly_flags"`

	VolatilityLabels []string  `json:"volatility_labels"`
	VolatilityValues []float64 `json:"volatility_values"`
	ExpenseLabels    []string  `json:"expense_labels"`
	ExpenseValues    []float64 `json:"expense_values"`

	Insights []string `json:"insights"`
}

// Clone returns a deep copy of s.
func (s Summary) Clone() Summary {
	c := s
	c.Categories = slices.Clone(s.Categories)
	c.CategoryTotals = slices.Clone(s.CategoryTotals)
	c.Months = slices.Clone(s.Months)
	c.Monthly = slices.Clone(s.Monthly)
	c.Dates = slices.Clone(s.Dates)
	c.Amounts = slices.Clone(s.Amounts)
	c.Cumulative = slices.Clone(s.Cumulative)
	c.Rolling = slices.Clone(s.Rolling)
	c.Velocity = slices.Clone(s.Velocity)
	c.AnomalyFlags = slices.Clone(s.AnomalyFlags)
	c.VolatilityLabels = slices.Clone(s.VolatilityLabels)
	c.VolatilityValues = slices.Clone(s.VolatilityValues)
	c.ExpenseLabels = slices.Clone(s.ExpenseLabels)
	c.ExpenseValues = slices.Clone(s.ExpenseValues)
	c.Insights = slices.Clone(s.Insights)
	return c
}

// Len is the number of records the summary was computed from.
func (s Summary) Len() int { return len(s.Dates) }

// ToAnalysis extracts the persisted headline of s for the given owner.
// The whole summary is serialized into Payload.
func (s Summary) ToAnalysis(email string) (Analysis, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return Analysis{}, fmt.Errorf("marshal summary: %w", err)
	}
	a := Analysis{
		Email:             email,
		Total:             s.Total,
		Average:           s.Average,
		Prediction:        s.Prediction,
		Anomalies:         s.AnomalyCount,
		StrongestCategory: s.StrongestCategory,
		Payload:           string(payload),
	}
	return a.Normalize(), nil
}

// SummaryFromPayload decodes a payload written by ToAnalysis.
func SummaryFromPayload(payload string) (Summary, error) {
	var s Summary
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return Summary{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	return s, nil
}
