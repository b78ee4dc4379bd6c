package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/retroproto/msnpd/cmd/msnpd/commands"
)

func main() {
	// A local .env can carry MSNPD_* overrides during development; a missing
	// file is not an error.
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
