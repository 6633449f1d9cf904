package main

import (
	"context"
	"os"
	"time"

	"smartspend/internal/amqp"
	"smartspend/internal/cli"
	applog "smartspend/internal/log"
	"smartspend/internal/services"
	"smartspend/internal/sheets/google"
	"smartspend/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	bootstrap := cli.SetupLogger(applog.DefaultConfig().Level, applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg.Level(), applog.ComponentWorker)

	if err := cfg.ValidateExport(); err != nil {
		logger.Error("Export configuration invalid", applog.FieldError, err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	sheetsClient, err := google.New(context.Background(), google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}

	processor := services.NewExportProcessor(repo, sheetsClient, services.ExportProcessorConfig{
		PollInterval: cfg.ExportInterval,
		BatchSize:    cfg.ExportBatchSize,
	})

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, running sweep only", applog.FieldError, err)
			amqpClient = nil
		}
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Error("Export processor stop error", applog.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", applog.FieldError, err)
			}
		}
	})

	logger.Info("Starting analysis export worker",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName,
		"interval", cfg.ExportInterval,
		"batch_size", cfg.ExportBatchSize,
		"amqp", amqpClient != nil)

	if amqpClient == nil {
		// no broker: the processor's own loop is the only trigger
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start export processor", applog.FieldError, err)
			os.Exit(1)
		}
	} else {
		w := worker.NewExportWorker(processor, amqpClient, cfg.ExportInterval)
		if err := w.Run(ctx); err != nil {
			logger.Error("Export worker stopped with error", applog.FieldError, err)
			os.Exit(1)
		}
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Export worker stopped gracefully")
}
