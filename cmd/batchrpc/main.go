package main

import (
	"os"

	"batchrpc/cmd/batchrpc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
