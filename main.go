package main

import (
	"errors"
	"log/slog"
	"os"

	"webpconv/logger"
)

// errReported marks failures that were already logged through the console.
var errReported = errors.New("reported")

func main() {
	cmd := NewRootCommand(func(cfg *Config) error {
		opts := logger.DefaultOptions()
		if cfg.Verbose {
			opts.Level = slog.LevelDebug
		}
		if cfg.LogJSON {
			opts.EnableJSON = true
			opts.EnableColors = false
		}
		console := logger.NewConsole(opts)

		processor := NewProcessor(cfg, console)
		if _, err := processor.Run(cfg.InputPath); err != nil {
			console.Error("Processing error: %v", err)
			return errReported
		}

		console.Success("All processing completed successfully")
		return nil
	})

	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			os.Stderr.WriteString("Configuration error: " + err.Error() + "\n")
		}
		os.Exit(1)
	}
}
