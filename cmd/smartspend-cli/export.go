package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"smartspend/internal/services"
	"smartspend/internal/sheets/google"
	"smartspend/internal/storage"
)

// exportCmd runs a single export sweep.
type exportCmd struct {
	batch int
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export pending analyses to Google Sheets once" }
func (*exportCmd) Usage() string {
	return `smartspend-cli export [-batch 50]

  Appends pending analyses to the configured spreadsheet and marks them exported.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.batch, "batch", 0, "analyses per sweep (defaults to EXPORT_BATCH_SIZE)")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e := envFrom(ctx)
	if err := e.cfg.ValidateExport(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	repo, err := storage.NewSQLiteRepository(e.cfg.SQLiteDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer repo.Close()

	sheetsClient, err := google.New(ctx, google.Config{
		SpreadsheetID:   e.cfg.GoogleSpreadsheetID,
		SheetName:       e.cfg.GoogleSheetName,
		CredentialsJSON: e.cfg.GoogleServiceAccountJSON,
		CredentialsFile: e.cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	batch := c.batch
	if batch <= 0 {
		batch = e.cfg.ExportBatchSize
	}
	processor := services.NewExportProcessor(repo, sheetsClient, services.ExportProcessorConfig{
		PollInterval: e.cfg.ExportInterval,
		BatchSize:    batch,
	})
	n := processor.ProcessPending(ctx)
	fmt.Printf("Exported %d analyses\n", n)
	return subcommands.ExitSuccess
}
