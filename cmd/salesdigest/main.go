package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/salesdigest/internal/app"
)

func main() {
	if err := app.Run(os.Stderr, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "salesdigest: %v\n", err)
		os.Exit(1)
	}
}
