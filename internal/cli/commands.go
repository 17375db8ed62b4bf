package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"catty/api/internal/checklist"
	"catty/api/internal/editor"
	"catty/api/internal/export"
	"catty/api/internal/ingest"
)

func (c *CLI) ingestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>",
		Short: "Adapt a JSON or YAML checklist and print the canonical document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.readDocument(args[0])
			if err != nil {
				return err
			}
			c.logWarnings(res)
			c.Logger.Info("ingested", "shape", shapeName(res.Shape), "nodes", len(res.Document.Nodes), "columns", len(res.Document.Columns))

			out, err := json.MarshalIndent(res.Document, "", "  ")
			if err != nil {
				return fmt.Errorf("encode document: %w", err)
			}
			printf(cmd.OutOrStdout(), "%s\n", out)
			return nil
		},
	}
}

func (c *CLI) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a checklist for structural violations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.readDocument(args[0])
			if err != nil {
				return err
			}
			c.logWarnings(res)
			return reportValidation(cmd.OutOrStdout(), args[0], res.Document)
		},
	}
}

func (c *CLI) exportCommand() *cobra.Command {
	var (
		formatFlag string
		outPath    string
		title      string
	)

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Render a checklist as xlsx, csv, json or pdf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			res, err := c.readDocument(args[0])
			if err != nil {
				return err
			}
			c.logWarnings(res)

			name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			if outPath != "" {
				name = strings.TrimSuffix(filepath.Base(outPath), filepath.Ext(outPath))
			}

			prog := newProgress(c.Logger)
			exporter := export.NewService(export.Options{
				PriorityLevels: c.checklist.PriorityLevels,
				CloseFinalBand: c.checklist.CloseFinalBand,
			})
			result, err := exporter.Export(cmd.Context(), export.Request{
				Document: res.Document,
				Format:   format,
				Name:     name,
				Title:    title,
			})
			var validationErr *checklist.ValidationError
			if errors.As(err, &validationErr) {
				printViolations(cmd.OutOrStdout(), validationErr)
				return ErrInvalidDocument
			}
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = result.Filename
			}
			if err := os.WriteFile(outPath, result.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}
			prog.done(fmt.Sprintf("Wrote %s (%d bytes)", outPath, len(result.Data)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&formatFlag, "format", "f", "xlsx", "output format: xlsx, csv, json or pdf")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (default: <name>.<format> in the working directory)")
	cmd.Flags().StringVar(&title, "title", "", "title printed on the PDF report")
	return cmd
}

func (c *CLI) pullCommand() *cobra.Command {
	var (
		server  string
		token   string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "pull <fileID>",
		Short: "Fetch a stored file from the API and validate it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("CATTY_TOKEN")
			}
			client := editor.NewHTTPClient(server, token)

			prog := newProgress(c.Logger)
			file, err := client.GetFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("pull %s: %w", args[0], err)
			}
			prog.done(fmt.Sprintf("Fetched %s %q", file.Code, file.Name))

			if outPath != "" {
				if err := os.WriteFile(outPath, file.FileJSON, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", outPath, err)
				}
				c.Logger.Info("saved", "path", outPath, "bytes", len(file.FileJSON))
			}

			res := ingest.Parse(file.FileJSON, c.ingestOptions())
			c.logWarnings(res)
			return reportValidation(cmd.OutOrStdout(), file.Code, res.Document)
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8787", "API base URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (default: $CATTY_TOKEN)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "also save the stored JSON to this path")
	return cmd
}

// reportValidation prints the outcome for label and returns
// ErrInvalidDocument when the document has violations.
func reportValidation(w io.Writer, label string, doc *checklist.Document) error {
	var validationErr *checklist.ValidationError
	if err := doc.Validate(); errors.As(err, &validationErr) {
		printf(w, "%s: %d violation(s)\n", label, len(validationErr.Violations))
		printViolations(w, validationErr)
		return ErrInvalidDocument
	} else if err != nil {
		return err
	}
	printf(w, "%s: ok (%d nodes, %d columns)\n", label, len(doc.Nodes), len(doc.Columns))
	return nil
}

func printViolations(w io.Writer, err *checklist.ValidationError) {
	for _, violation := range err.Violations {
		printf(w, "  - [%s] %s\n", violation.Kind, violation.Message)
	}
}

func shapeName(shape ingest.Shape) string {
	if shape == ingest.ShapeNone {
		return "none"
	}
	return string(shape)
}
