package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// DefaultCategory is assigned to rows whose category cell is absent or blank.
const DefaultCategory = "General"

const (
	ExportPending ExportStatus = "pending"
	ExportDone    ExportStatus = "exported"
	ExportFailed  ExportStatus = "error"
)

type (
	ExportStatus string

	// Transaction is one ingested spreadsheet row.
	Transaction struct {
		RawDate  string    // date cell as it appeared in the upload
		Date     time.Time // parsed RawDate; zero when no known layout matched
		Amount   float64
		Category string
	}

	// Analysis is the persisted headline of a computed Summary.
	Analysis struct {
		ID                int64
		Ref               string
		Email             string
		Total             float64
		Average           float64
		Prediction        float64
		Anomalies         int
		StrongestCategory string
		Payload           string // serialized Summary
		ExportStatus      ExportStatus
		CreatedAt         time.Time
	}

	Profile struct {
		Email      string
		Name       string
		Occupation string
		Avatar     string
		Theme      string
		UpdatedAt  time.Time
	}
)

var (
	ErrMissingColumns = errors.New("required columns missing: date/time + amount")
	ErrNoData         = errors.New("no valid rows remain after cleaning")
	ErrNotFound       = errors.New("not found")
	ErrEmptyEmail     = errors.New("email is required")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidCount   = errors.New("invalid anomaly count")
)

// Dated reports whether RawDate was understood as a calendar date.
func (t Transaction) Dated() bool {
	return !t.Date.IsZero()
}

// Validate reports whether t satisfies the record invariant: a non-empty date
// and a finite amount. The date need not be parseable.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.RawDate) == "" {
		return errors.New("date cannot be empty")
	}
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return ErrInvalidAmount
	}
	return nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Normalize applies the persistence defaults in place and returns the result.
func (a Analysis) Normalize() Analysis {
	a.Email = NormalizeEmail(a.Email)
	if strings.TrimSpace(a.StrongestCategory) == "" {
		a.StrongestCategory = DefaultCategory
	}
	if strings.TrimSpace(a.Payload) == "" {
		a.Payload = "{}"
	}
	if a.ExportStatus == "" {
		a.ExportStatus = ExportPending
	}
	return a
}

func (a Analysis) Validate() error {
	for _, v := range []float64{a.Total, a.Average, a.Prediction} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidAmount
		}
	}
	if a.Anomalies < 0 {
		return ErrInvalidCount
	}
	if len(a.StrongestCategory) > 200 {
		return errors.New("strongest category too long (max 200 characters)")
	}
	return nil
}

// Normalize applies the profile defaults and returns the result.
func (p Profile) Normalize() Profile {
	p.Email = NormalizeEmail(p.Email)
	p.Name = strings.TrimSpace(p.Name)
	p.Occupation = strings.TrimSpace(p.Occupation)
	p.Theme = strings.TrimSpace(p.Theme)
	if p.Theme == "" {
		p.Theme = "dark"
	}
	return p
}

func (p Profile) Validate() error {
	if NormalizeEmail(p.Email) == "" {
		return ErrEmptyEmail
	}
	return nil
}
