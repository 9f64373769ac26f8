package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"docqa/internal/app"
	"docqa/internal/cli"
	"docqa/internal/config"
	"docqa/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(openCore)
	root.SetOut(os.Stdout)

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// openCore builds the pipeline over the local index. Logs go to stderr so
// command output stays clean on stdout.
func openCore(context.Context) (cli.Core, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
		Output: os.Stderr,
	})

	a, err := app.Open(cfg, app.Options{}, log)
	if err != nil {
		return nil, nil, err
	}
	return a.RAG, a.Close, nil
}
