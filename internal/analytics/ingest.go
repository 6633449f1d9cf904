package analytics

import (
	"math"
	"strconv"
	"strings"
	"time"

	"smartspend/internal/core"
)

// Delimiter separates header and data fields. Embedded delimiters are not
// escaped: a quoted cell containing a comma is split like any other.
const Delimiter = ","

var (
	dateKeys     = []string{"date", "time"}
	amountKeys   = []string{"amount", "price", "cost", "value"}
	categoryKeys = []string{"category", "type", "group"}

	lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// dateLayouts are tried in order. Ambiguous slash dates read month-first;
// the day-first layouts only match when that fails, e.g. "15/01/2024".
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04",
	"Jan 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"2006-01",

	"02/01/2006",
	"2/1/2006",
	"02/01/2006 15:04",
	"02.01.2006",
	"2.1.2006",
	"02-01-2006",
	"2006.01.02",
}

// IngestStats counts what happened to the data lines of an upload.
type IngestStats struct {
	Lines    int // non-blank data lines, header excluded
	Accepted int
	Dropped  int
	Undated  int // accepted rows whose date matched no layout
}

type columns struct {
	date     int
	amount   int
	category int // -1 when absent
}

// Ingest parses raw delimited text into transactions. Fewer than two
// non-blank lines yields an empty result and no error; a header without a
// date or amount column yields core.ErrMissingColumns.
func Ingest(text string) ([]core.Transaction, error) {
	records, _, err := IngestWithStats(text)
	return records, err
}

// IngestWithStats is Ingest that also reports how many rows were dropped.
func IngestWithStats(text string) ([]core.Transaction, IngestStats, error) {
	lines := splitLines(text)
	if len(lines) < 2 {
		return []core.Transaction{}, IngestStats{}, nil
	}

	cols, err := detectColumns(lines[0])
	if err != nil {
		return nil, IngestStats{}, err
	}

	stats := IngestStats{Lines: len(lines) - 1}
	records := make([]core.Transaction, 0, len(lines)-1)
	for _, line := range lines[1:] {
		tx, ok := parseRow(line, cols)
		if !ok {
			stats.Dropped++
			continue
		}
		if !tx.Dated() {
			stats.Undated++
		}
		records = append(records, tx)
	}
	stats.Accepted = len(records)
	return records, stats, nil
}

func splitLines(text string) []string {
	raw := strings.Split(lineBreaks.Replace(text), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

func detectColumns(headerLine string) (columns, error) {
	fields := strings.Split(headerLine, Delimiter)
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = strings.ToLower(strings.TrimSpace(f))
	}
	cols := columns{
		date:     findColumn(header, dateKeys),
		amount:   findColumn(header, amountKeys),
		category: findColumn(header, categoryKeys),
	}
	if cols.date < 0 || cols.amount < 0 {
		return columns{}, core.ErrMissingColumns
	}
	return cols, nil
}

// findColumn returns the leftmost header containing any of keys, or -1.
func findColumn(header []string, keys []string) int {
	for i, h := range header {
		for _, k := range keys {
			if strings.Contains(h, k) {
				return i
			}
		}
	}
	return -1
}

func parseRow(line string, cols columns) (core.Transaction, bool) {
	cells := strings.Split(line, Delimiter)

	rawDate := cell(cells, cols.date)
	if rawDate == "" {
		return core.Transaction{}, false
	}
	// an unrecognised date keeps the row; it sorts after the dated ones
	date, _ := ParseDate(rawDate)

	amount, err := strconv.ParseFloat(cell(cells, cols.amount), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return core.Transaction{}, false
	}

	category := core.DefaultCategory
	if cols.category >= 0 {
		if c := cell(cells, cols.category); c != "" {
			category = c
		}
	}

	return core.Transaction{RawDate: rawDate, Date: date, Amount: amount, Category: category}, true
}

func cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

// ParseDate parses a date cell using the accepted layouts. Times are kept in
// UTC; no time zone conversion takes place.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
