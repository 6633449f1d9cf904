package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"smartspend/internal/analytics"
	"smartspend/internal/core"
	"smartspend/internal/insights"
	applog "smartspend/internal/log"
	"smartspend/internal/services"
	"smartspend/internal/storage"
)

const (
	exitMissingColumns subcommands.ExitStatus = 1
	exitNoData         subcommands.ExitStatus = 2
)

// analyzeCmd holds the flags for the 'analyze' subcommand.
type analyzeCmd struct {
	out            io.Writer
	local          bool
	serverInsights bool
	save           string
	indent         bool
}

func (*analyzeCmd) Name() string     { return "analyze" }
func (*analyzeCmd) Synopsis() string { return "analyze an expense CSV and print the summary" }
func (*analyzeCmd) Usage() string {
	return `smartspend-cli analyze [-local] [-server-insights] [-save <email>] <file.csv>

  Runs the analysis pipeline over a CSV export and prints the summary as JSON.
  Exits 1 when the date or amount column is missing, 2 when no row survives cleaning.
`
}

func (c *analyzeCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.local, "local", false, "add the local preview sentences to the insights")
	f.BoolVar(&c.serverInsights, "server-insights", false, "append category, trend and forecast insights")
	f.StringVar(&c.save, "save", "", "save the analysis to SQLite for this email")
	f.BoolVar(&c.indent, "indent", true, "indent the JSON output")
}

func (c *analyzeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: expected exactly one CSV file")
		return subcommands.ExitUsageError
	}
	e := envFrom(ctx)

	text, err := readCSV(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	opts := analytics.Options{Local: c.local, CurrencySymbol: e.cfg.CurrencySymbol}
	if c.serverInsights {
		opts.Provider = insights.NewProvider(e.cfg.CurrencySymbol)
	}
	summary, stats, ok, err := analytics.AnalyzeWithStats(text, opts)
	switch {
	case errors.Is(err, core.ErrMissingColumns):
		fmt.Fprintln(os.Stderr, "Error: CSV must include date/time and amount columns.")
		return exitMissingColumns
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	case !ok:
		fmt.Fprintln(os.Stderr, "Error: No valid rows remain after cleaning.")
		return exitNoData
	}
	e.logger.Debug("Analyzed file",
		"file", f.Arg(0),
		"lines", stats.Lines,
		"accepted", stats.Accepted,
		"dropped", stats.Dropped)

	if c.save != "" {
		saved, err := saveSummary(ctx, e, c.save, summary)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(os.Stderr, "Saved analysis %s\n", saved.Ref)
	}

	enc := json.NewEncoder(c.out)
	if c.indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(summary); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// readCSV reads a file as text, honouring a UTF-8 or UTF-16 byte order mark.
func readCSV(name string) (string, error) {
	raw, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(decoded), nil
}

func saveSummary(ctx context.Context, e env, email string, summary core.Summary) (core.Analysis, error) {
	repo, err := storage.NewSQLiteRepository(e.cfg.SQLiteDBPath)
	if err != nil {
		return core.Analysis{}, fmt.Errorf("open database: %w", err)
	}
	// no publisher: the export worker's sweep picks the row up
	svc := services.NewAnalysisService(repo, nil, nil, services.AnalysisServiceConfig{CurrencySymbol: e.cfg.CurrencySymbol})
	defer func() {
		if err := svc.Close(); err != nil {
			e.logger.Warn("Close database", applog.FieldError, err)
		}
	}()
	return svc.SaveSummary(ctx, email, summary)
}
