package main

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/r-ex/repak/pkg/logging"
	"github.com/r-ex/repak/pkg/rpak"
)

const version = "0.1.0"

var (
	logLevel    string
	jsonLog     bool
	versionFlag bool
	rootCmd     *cobra.Command
)

func getBuildTimestamp() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.time" {
				if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					return t.UTC().Format(time.RFC3339)
				}
			}
		}
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func init() {
	rootCmd = &cobra.Command{
		Use:   "repak-builder <path-to-map.json>",
		Short: "Compile a game asset map into a pak file",
		Args:  cobra.ExactArgs(1),
		RunE:  build,
	}

	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&jsonLog, "json-log", false, "Emit structured JSON logs")
	rootCmd.Flags().BoolVarP(&versionFlag, "version", "V", false, "Show version information")
}

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-V") {
		printVersion()
		os.Exit(0)
	}

	if err := rootCmd.Execute(); err != nil {
		color.Red("repak-builder: %v", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("repak-builder %s\n", version)
	fmt.Printf("Built: %s\n", getBuildTimestamp())
}

func build(cmd *cobra.Command, args []string) error {
	if versionFlag {
		printVersion()
		return nil
	}

	if jsonLog {
		os.Setenv("REPAK_JSON_LOG", "1")
	}

	level := logLevel
	if level == "" {
		level = logging.GetLogLevel()
	}
	logger := logging.NewLogger("repak-builder", level, os.Stderr)

	result, err := rpak.BuildFromMap(args[0], logger)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		color.Yellow("warning: %s", w)
	}

	color.Green("wrote %s (%d assets)", result.OutputPath, result.AssetCount)
	return nil
}
