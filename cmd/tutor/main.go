// Command tutor is the CLI for the tutoring engine.
//
// Usage:
//
//	tutor chat --config config.yaml --question "Solve 3x+5=20" --solution "x=5"
//	tutor index --config config.yaml corpus.json
//	tutor validate config.yaml
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Chat     ChatCmd     `cmd:"" help:"Run an interactive tutoring session in the terminal."`
	Index    IndexCmd    `cmd:"" help:"Index a corpus file into the vector store."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON Schema for the configuration."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("tutor version %s\n", version)
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("tutor"),
		kong.Description("Voice-first math tutoring engine"),
		kong.UsageOnError(),
	)

	if err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
