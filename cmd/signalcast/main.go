package main

import (
	"os"

	"github.com/wonny/signalcast/cmd/signalcast/commands"
)

// main is the entry point for the signalcast CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/signalcast [command]
func main() {
	os.Exit(commands.Execute())
}
