package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/progress-ledger/internal/api_gateway/service"
	"github.com/progress-ledger/internal/domain/hashchain"
	"github.com/progress-ledger/internal/domain/progress"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// errChainBroken is returned by verify when the chain does not check out.
var errChainBroken = errors.New("chain integrity check failed")

type rootOptions struct {
	configName string
	format     string
	open       backendFunc
}

func newRootCmd(open backendFunc) *cobra.Command {
	opts := &rootOptions{open: open}

	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Inspect and append to the tamper-evident progress ledger",
		Long: `ledgerctl works directly against the ledger database.

It can recompute a record digest offline, verify a project's chain,
print its annotated history and append a new progress report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("unsupported --format %q: use text or json", opts.format)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configName, "config", "ledgerctl", "config name, read from configs/<name>.env")
	rootCmd.PersistentFlags().StringVar(&opts.format, "format", "text", "Output format: text or json")

	rootCmd.AddCommand(newHashCmd(opts))
	rootCmd.AddCommand(newVerifyCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))
	rootCmd.AddCommand(newReportCmd(opts))

	return rootCmd
}

// ── hash ─────────────────────────────────────────────────────────────────────

func newHashCmd(opts *rootOptions) *cobra.Command {
	var (
		fields    hashchain.Fields
		percent   string
		version   int
		canonical bool
	)

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Compute a record digest without touching the database",
		Example: `  ledgerctl hash --project P1 --percent 50.0 --date 2025-06-01 --by deo-17
  ledgerctl hash --project P1 --percent 75 --date 2025-07-01 --by deo-17 --prev 69c8c1fe... --canonical`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := decimal.NewFromString(percent)
			if err != nil {
				return fmt.Errorf("invalid --percent %q: %w", percent, err)
			}
			fields.ReportedPercent = p

			canonicalBytes, err := hashchain.Canonical(version, fields)
			if err != nil {
				return err
			}
			digest, err := hashchain.ComputeVersion(version, fields)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.format == "json" {
				result := map[string]interface{}{"hash": digest, "hash_version": version}
				if canonical {
					result["canonical"] = string(canonicalBytes)
				}
				return writeJSON(out, result)
			}
			if canonical {
				fmt.Fprintln(out, string(canonicalBytes))
			}
			fmt.Fprintln(out, digest)
			return nil
		},
	}

	cmd.Flags().StringVar(&fields.ProjectID, "project", "", "Project id")
	cmd.Flags().StringVar(&percent, "percent", "", "Reported percent, e.g. 50.0")
	cmd.Flags().StringVar(&fields.ReportDate, "date", "", "Report date, YYYY-MM-DD")
	cmd.Flags().StringVar(&fields.ReportedBy, "by", "", "Reporter id")
	cmd.Flags().StringVar(&fields.PrevHash, "prev", hashchain.GenesisHash, "Predecessor record_hash (genesis when omitted)")
	cmd.Flags().IntVar(&version, "hash-version", hashchain.CurrentVersion, "Canonical form version")
	cmd.Flags().BoolVar(&canonical, "canonical", false, "Also print the canonical bytes that are hashed")
	for _, name := range []string{"project", "percent", "date", "by"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

// ── verify ───────────────────────────────────────────────────────────────────

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <project_id>",
		Short: "Recompute every digest of a project's chain; exits 1 when it is broken",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts, func(svc service.ProgressService) error {
				result, err := svc.VerifyIntegrity(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if opts.format == "json" {
					if err := writeJSON(out, result); err != nil {
						return err
					}
				} else if result.Valid {
					fmt.Fprintf(out, "OK: %s chain is intact (%d records)\n", result.ProjectID, result.Total)
				} else {
					ref := result.BrokenAt
					fmt.Fprintf(out, "BROKEN: %s chain fails at sequence %d (record %s)\n", result.ProjectID, ref.Sequence, ref.RecordID)
					fmt.Fprintf(out, "  reason:   %s\n  expected: %s\n  actual:   %s\n", ref.Reason, ref.ExpectedHash, ref.ActualHash)
				}

				if !result.Valid {
					return errChainBroken
				}
				return nil
			})
		},
	}
}

// ── history ──────────────────────────────────────────────────────────────────

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <project_id>",
		Short: "Print a project's records oldest first with their validity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts, func(svc service.ProgressService) error {
				history, err := svc.GetHistory(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if opts.format == "json" {
					return writeJSON(out, history)
				}
				if len(history) == 0 {
					fmt.Fprintf(out, "%s has no progress records\n", args[0])
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SEQ\tDATE\tPERCENT\tBY\tHASH\tHASH OK\tLINK OK\tCHAIN OK")
				for _, entry := range history {
					r := entry.Record
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						r.Sequence, r.ReportDate, hashchain.FormatPercent(r.ReportedPercent), r.ReportedBy,
						shortHash(r.RecordHash), yesNo(entry.HashValid), yesNo(entry.LinkValid), yesNo(entry.ChainValid))
				}
				return w.Flush()
			})
		},
	}
}

// ── report ───────────────────────────────────────────────────────────────────

func newReportCmd(opts *rootOptions) *cobra.Command {
	var percent, date, by, remarks string

	cmd := &cobra.Command{
		Use:   "report <project_id>",
		Short: "Append a progress report to a project's chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := decimal.NewFromString(percent)
			if err != nil {
				return fmt.Errorf("invalid --percent %q: %w", percent, err)
			}
			reportDate, err := progress.ParseDate(date)
			if err != nil {
				return err
			}

			return withService(cmd.Context(), opts, func(svc service.ProgressService) error {
				record, err := svc.ReportProgress(cmd.Context(), &service.ReportRequest{
					ProjectID:       args[0],
					ReportedPercent: p,
					ReportDate:      reportDate,
					Remarks:         remarks,
					ReportedBy:      by,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if opts.format == "json" {
					return writeJSON(out, record)
				}
				fmt.Fprintf(out, "Recorded %s #%d %s %s%%\n", record.ProjectID, record.Sequence, record.ReportDate, hashchain.FormatPercent(record.ReportedPercent))
				fmt.Fprintf(out, "  record_id:   %s\n  prev_hash:   %s\n  record_hash: %s\n", record.RecordID, record.PrevHash, record.RecordHash)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&percent, "percent", "", "Reported percent, e.g. 50.0")
	cmd.Flags().StringVar(&date, "date", "", "Report date, YYYY-MM-DD")
	cmd.Flags().StringVar(&by, "by", "", "Reporter id")
	cmd.Flags().StringVar(&remarks, "remarks", "", "Free-text remarks")
	for _, name := range []string{"percent", "date", "by"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

// ── helpers ──────────────────────────────────────────────────────────────────

func withService(ctx context.Context, opts *rootOptions, fn func(service.ProgressService) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closeFn, err := opts.open(ctx, opts.configName)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(svc)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}

func yesNo(ok bool) string {
	if ok {
		return "yes"
	}
	return "NO"
}
