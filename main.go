package main

import (
	"os"

	"pagebuilder/internal/app"
)

func main() {
	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}
