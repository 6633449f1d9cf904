package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"smartspend/internal/core"
	"smartspend/internal/storage"
)

// historyCmd holds the flags for the 'history' subcommand.
type historyCmd struct {
	out   io.Writer
	email string
	limit int
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "list saved analyses" }
func (*historyCmd) Usage() string {
	return `smartspend-cli history [-email <email>] [-n 10]

  Lists the most recent analyses saved in the SQLite database.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.email, "email", "", "only list analyses saved for this email")
	f.IntVar(&c.limit, "n", 10, "number of analyses to list")
}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.limit <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -n must be positive")
		return subcommands.ExitUsageError
	}
	e := envFrom(ctx)

	repo, err := storage.NewSQLiteRepository(e.cfg.SQLiteDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer repo.Close()

	analyses, err := repo.ListAnalyses(ctx, core.NormalizeEmail(c.email), c.limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := writeHistory(c.out, e.cfg.CurrencySymbol, analyses); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func writeHistory(out io.Writer, symbol string, analyses []core.Analysis) error {
	if len(analyses) == 0 {
		_, err := fmt.Fprintln(out, "No analyses saved yet.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tREF\tEMAIL\tTOTAL\tAVERAGE\tPREDICTION\tANOMALIES\tCATEGORY\tEXPORT")
	for _, a := range analyses {
		email := a.Email
		if email == "" {
			email = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			a.CreatedAt.UTC().Format("2006-01-02 15:04"),
			a.Ref,
			email,
			core.Currency(symbol, a.Total),
			core.Currency(symbol, a.Average),
			core.Currency(symbol, a.Prediction),
			a.Anomalies,
			a.StrongestCategory,
			a.ExportStatus)
	}
	return tw.Flush()
}
