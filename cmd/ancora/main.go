package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/ancora-labs/ancora/internal/adapters/driving/cli"
)

func main() {
	// Provider API keys may live in a local .env instead of the shell.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
