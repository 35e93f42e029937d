package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/vk/corpusmill/internal/cli"
)

// main is the entrypoint for the corpusmill binary.
func main() {
	// Use a minimal logger until the build command configures the real one.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		code := 1
		if exitErr, ok := err.(*cli.ExitError); ok {
			code = exitErr.Code
		}
		os.Exit(code)
	}
}

// run keeps the real logic testable: it loads the optional .env file and
// hands off to the command tree.
func run(outW, errW io.Writer, args []string) error {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		slog.Warn("Could not load .env file.", "error", err)
	}
	return cli.Execute(context.Background(), outW, errW, args)
}
