package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"ledger/internal/adapters"
	"ledger/internal/cli"
	"ledger/internal/log"
)

func main() {
	os.Exit(realMain())
}

// realMain returns the exit code so deferred closes run before exiting.
func realMain() int {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		return 1
	}
	switch os.Args[1] {
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return 0
	}

	cli.LoadEnvFile()
	logger := cli.SetupLoggerTo(log.ComponentCLI, os.Stderr)
	cfg := cli.LoadAndValidateConfig(logger)
	app := cli.Wire(logger, cfg, cli.InitSQLite(logger, cfg.DBPath), cli.InitAMQP(logger, cfg))
	defer app.Close()

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	ops := adapters.NewOperations(app.Imports, app.Ledger, app.Budget, logger)
	err := run(ctx, ops, os.Args[1:], os.Stdout)
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUnknownCommand):
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		printUsage(os.Stderr)
		return 1
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
}
