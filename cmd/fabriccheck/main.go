// Package main provides the fabriccheck binary, a command line front end to the fabric
// classifier, parser and evaluator.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"intertexe/backend/internal/catalog"
	"intertexe/backend/internal/fabric"
	"intertexe/backend/internal/match"
	"intertexe/backend/internal/store"
)

// errRejected signals a composition that failed the standards; main maps it to exit code 1.
var errRejected = errors.New("composition rejected")

func main() {
	if err := rootCmd().Execute(); err != nil {
		if !errors.Is(err, errRejected) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		tablePath string
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:           "fabriccheck",
		Short:         "Check garment compositions against INTERTEXE fabric standards",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&tablePath, "table", "", "Fiber table YAML (defaults to the embedded table)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	loadTable := func() (*fabric.Table, error) {
		if strings.TrimSpace(tablePath) == "" {
			return fabric.DefaultTable(), nil
		}
		return fabric.LoadTable(tablePath)
	}

	cmd.AddCommand(classifyCmd(loadTable), parseCmd(), evaluateCmd(loadTable), importCmd(loadTable))
	return cmd
}

func classifyCmd(loadTable func() (*fabric.Table, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "classify FIBER...",
		Short: "Print the category of each fiber name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadTable()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range args {
				profile := match.NormalizeFiber(table, name)
				result := table.Lookup(profile.Canonical)
				line := fmt.Sprintf("%s\t%s", name, profile.Category)
				if profile.Canonical != strings.TrimSpace(name) {
					line += "\t" + profile.Canonical
				}
				if !result.Recognized {
					line += "\t(unrecognized)"
				} else if table.IsLiningException(name) {
					line += "\t(lining exception)"
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse TEXT",
		Short: "Extract fiber entries from free composition text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := fabric.ParseDetailed(strings.Join(args, " "))
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

func evaluateCmd(loadTable func() (*fabric.Table, error)) *cobra.Command {
	var (
		lining  []string
		product string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate TEXT",
		Short: "Evaluate a composition; exits with status 1 when it is rejected",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadTable()
			if err != nil {
				return err
			}
			parsed := fabric.ParseDetailed(strings.Join(args, " "))
			entries := match.CanonicalEntries(parsed.Entries)
			for _, raw := range lining {
				entry, err := parseLiningFlag(raw)
				if err != nil {
					return err
				}
				entries = append(entries, entry)
			}

			result := table.Evaluate(fabric.Composition{ProductName: product, Compositions: entries})
			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, result); err != nil {
					return err
				}
			} else {
				verdict := "REJECTED"
				if result.Approved {
					verdict = "APPROVED"
				}
				fmt.Fprintf(out, "%s natural=%s%% synthetic=%s%%\n", verdict,
					strconv.FormatFloat(result.NaturalPercent, 'f', -1, 64),
					strconv.FormatFloat(result.SyntheticPercent, 'f', -1, 64))
				for _, reason := range result.Reasons {
					fmt.Fprintf(out, "  - %s\n", reason)
				}
				for _, segment := range parsed.Unparsed {
					fmt.Fprintf(out, "  ! ignored %q\n", segment)
				}
			}
			if !result.Approved {
				return errRejected
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&lining, "lining", nil, "Lining entry as fiber=percent (repeatable)")
	cmd.Flags().StringVar(&product, "product", "", "Product name to attach to the evaluation")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the evaluation as JSON")
	return cmd
}

func importCmd(loadTable func() (*fabric.Table, error)) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "import CSV",
		Short: "Evaluate and store products from a designer,product,composition[,url] CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadTable()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
				return fmt.Errorf("create data directory: %w", err)
			}
			db, err := store.Open(dbPath, true)
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := catalog.NewService(db, table, nil).LoadFromCSV(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rows=%d imported=%d approved=%d skipped=%d designers=%d\n",
				result.Rows, result.Imported, result.Approved, result.Skipped, result.Designers)
			for _, problem := range result.Problems {
				fmt.Fprintf(out, "  row %d: %s\n", problem.Row, problem.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", filepath.Join("data", "intertexe.db"), "SQLite database path")
	return cmd
}

func parseLiningFlag(raw string) (fabric.FiberEntry, error) {
	fiber, value, ok := strings.Cut(raw, "=")
	fiber = strings.TrimSpace(fiber)
	if !ok || fiber == "" {
		return fabric.FiberEntry{}, fmt.Errorf("invalid --lining %q: want fiber=percent", raw)
	}
	percent, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(value), "%"), 64)
	if err != nil {
		return fabric.FiberEntry{}, fmt.Errorf("invalid --lining %q: %w", raw, err)
	}
	entry := fabric.FiberEntry{Fiber: match.CanonicalFiber(fiber), Percent: percent, IsLining: true}
	if err := catalog.ValidateEntries([]fabric.FiberEntry{entry}); err != nil {
		return fabric.FiberEntry{}, fmt.Errorf("invalid --lining %q: %w", raw, err)
	}
	return entry, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
