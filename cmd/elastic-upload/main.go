package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/elastic-upload/internal/cli"
)

func main() {
	// A .env file fills in variables that are not already set
	_ = godotenv.Load()

	// SIGINT/SIGTERM cancel the run; the batch in flight is abandoned
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
