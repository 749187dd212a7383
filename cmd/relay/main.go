package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/loftwing/relay/internal/commands"
)

// Version information (injected via ldflags at build time)
var version = "dev"

func main() {
	// Best-effort: a local .env may hold RELAY_TOKEN and friends.
	_ = godotenv.Load()

	os.Exit(commands.Execute(version))
}
