// Command smartspend-cli analyzes expense exports from the terminal and
// inspects analyses saved by the server.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"smartspend/internal/cli"
	"smartspend/internal/config"
	applog "smartspend/internal/log"
)

var (
	dbPath   = flag.String("db", "", "Path to the SQLite database (defaults to SQLITE_DB_PATH)")
	logLevel = flag.String("log-level", "", "Log level (defaults to LOG_LEVEL)")
)

func main() {
	cli.LoadEnvFile()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	register(commander)

	flag.Parse()

	cfg := config.Load()
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *dbPath != "" {
		cfg.SQLiteDBPath = *dbPath
	}
	// stdout carries command output
	logger := cli.SetupLoggerTo(os.Stderr, cfg.Level(), applog.ComponentApp)

	ctx := withEnv(context.Background(), cfg, logger)
	os.Exit(int(commander.Execute(ctx)))
}

// register adds the smartspend commands.
func register(c *subcommands.Commander) {
	c.Register(&analyzeCmd{out: os.Stdout}, "analysis")
	c.Register(&historyCmd{out: os.Stdout}, "analysis")
	c.Register(&exportCmd{}, "export")
}

type envKey struct{}

type env struct {
	cfg    *config.Config
	logger *applog.Logger
}

func withEnv(ctx context.Context, cfg *config.Config, logger *applog.Logger) context.Context {
	return context.WithValue(ctx, envKey{}, env{cfg: cfg, logger: logger})
}

// envFrom returns the environment stored by withEnv, or one loaded from the
// process environment.
func envFrom(ctx context.Context) env {
	if e, ok := ctx.Value(envKey{}).(env); ok {
		return e
	}
	return env{cfg: config.Load(), logger: applog.New(applog.DefaultConfig())}
}
