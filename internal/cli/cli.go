// Package cli implements cattyctl, the offline companion of the checklist
// API.
//
// # Commands
//
//   - ingest: adapt a JSON or YAML checklist and print the canonical document
//   - validate: report every structural violation, exiting non-zero on any
//   - export: render a checklist to xlsx, csv, json or pdf
//   - pull: fetch a stored file from a running API and validate it
//
// All commands accept --verbose (-v) for debug logging and --config to load
// the scales and priority bands from a TOML file.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"catty/api/internal/config"
	"catty/api/internal/ingest"
)

const appName = "cattyctl"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// ErrInvalidDocument is returned by commands that found violations; the
// violations themselves have already been printed.
var ErrInvalidDocument = errors.New("document is invalid")

var version = "dev"

// SetVersion sets the string printed by --version.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// CLI holds state shared by all commands.
type CLI struct {
	Logger     *log.Logger
	configPath string
	checklist  config.Checklist
}

func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger:    newLogger(w, level),
		checklist: config.DefaultChecklist(),
	}
}

func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand builds the command tree.
func (c *CLI) RootCommand() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           appName,
		Short:         "cattyctl ingests, validates and exports checklists",
		Long:          `cattyctl works on checklist documents offline: it adapts loosely shaped JSON or YAML into the canonical document, validates the hierarchy and renders spreadsheet, CSV, JSON or PDF exports. It can also pull a stored file from a running API.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				c.SetLogLevel(LogDebug)
			}
			return c.loadConfig()
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "TOML file with scales and priority bands")

	root.AddCommand(c.ingestCommand())
	root.AddCommand(c.validateCommand())
	root.AddCommand(c.exportCommand())
	root.AddCommand(c.pullCommand())
	return root
}

func (c *CLI) loadConfig() error {
	if c.configPath == "" {
		return nil
	}
	cfg, err := config.LoadChecklist(c.configPath)
	if err != nil {
		return err
	}
	c.checklist = cfg
	c.Logger.Debug("loaded checklist config", "path", c.configPath)
	return nil
}

func (c *CLI) ingestOptions() ingest.Options {
	return ingest.Options{Scales: c.checklist.Scales}
}

// logWarnings reports ingestion warnings without failing the command.
func (c *CLI) logWarnings(res *ingest.Result) {
	for _, warning := range res.Warnings {
		c.Logger.Warn(warning)
	}
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
