package main

import (
	"go-tube-download/cmd/tube-downloader/cmd"
)

func main() {
	// Execute the root command (defined in cmd/root.go)
	cmd.Execute()
}
