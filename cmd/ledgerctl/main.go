package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ledgersync/internal/cli"
	"ledgersync/internal/config"
	"ledgersync/internal/logger"
)

func main() {
	logger.InitWithOptions(os.Getenv("ENV"), logger.Options{File: os.Getenv("LOG_FILE")})
	os.Exit(run())
}

func run() int {
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return cli.ExitCommandError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(cli.DefaultOptions(cfg)).ExecuteContext(ctx); err != nil {
		return cli.ExitCode(err)
	}
	return cli.ExitSuccess
}
