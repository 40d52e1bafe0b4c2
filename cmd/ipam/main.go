package main

import (
	"context"
	"fmt"
	"os"

	"github.com/chiquitav2/ipam/cmd/ipam/cmd"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
