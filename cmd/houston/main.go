package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/houston/cmd/houston/app"
)

func main() {
	// A .env file is optional; its variables reach viper as HOUSTON_* overrides.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: failed to load .env: %v\n", err)
		os.Exit(1)
	}

	app.NewApp().Run()
}
