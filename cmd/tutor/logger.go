package main

import (
	"os"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/logger"
)

// initLoggerFromCLI installs the process-wide logger from CLI flags. Config
// file logger settings are overridden by explicit flags, so the logger is
// usable before any config is loaded.
func initLoggerFromCLI(levelStr, file, format string) error {
	level, _ := logger.ParseLevel(levelStr)

	output := os.Stderr
	if file != "" {
		f, _, err := logger.OpenLogFile(file)
		if err != nil {
			return err
		}
		output = f
	}

	logger.Init(level, output, format)
	return nil
}
