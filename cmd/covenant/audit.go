package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/covenant/pkg/cli"
	"mercator-hq/covenant/pkg/evidence"
	"mercator-hq/covenant/pkg/evidence/export"
	"mercator-hq/covenant/pkg/evidence/recorder"
)

var auditFlags struct {
	user      string
	requestID string
	action    string
	approved  bool
	blocked   bool
	minRisk   float64
	since     string
	until     string
	limit     int
	offset    int
	order     string

	format string
	file   string
	pretty bool
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
	Long: `Inspect the audit trail held by the configured backend.

Subcommands:
  query   - list decisions matching filters
  stats   - approval counts and mean risk score
  verify  - check the hash chain of every stored entry
  export  - write the trail as JSON or CSV`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List audit entries",
	Long: `List audit entries matching the given filters.

Times accept RFC 3339 ("2026-07-01T00:00:00Z") or a duration relative to
now ("24h" means 24 hours ago).

Examples:
  covenant audit query --user alice --blocked
  covenant audit query --since 24h --min-risk 10 -o json`,
	Args: cobra.NoArgs,
	RunE: runAuditQuery,
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the audit trail",
	Args:  cobra.NoArgs,
	RunE:  runAuditStats,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit hash chain",
	Long: `Verify that every stored entry hashes correctly and links to its
predecessor. Any edit, deletion or reordering of stored entries fails the
check.`,
	Args: cobra.NoArgs,
	RunE: runAuditVerify,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the audit trail",
	Long: `Export the complete audit trail.

Examples:
  covenant audit export --format csv --file audit.csv
  covenant audit export --format json --pretty`,
	Args: cobra.NoArgs,
	RunE: runAuditExport,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditStatsCmd, auditVerifyCmd, auditExportCmd)

	f := auditQueryCmd.Flags()
	f.StringVar(&auditFlags.user, "user", "", "filter by user ID")
	f.StringVar(&auditFlags.requestID, "request-id", "", "filter by request ID")
	f.StringVar(&auditFlags.action, "action", "", "filter by action substring")
	f.BoolVar(&auditFlags.approved, "approved", false, "only approved decisions")
	f.BoolVar(&auditFlags.blocked, "blocked", false, "only blocked decisions")
	f.Float64Var(&auditFlags.minRisk, "min-risk", 0, "minimum risk score")
	f.StringVar(&auditFlags.since, "since", "", "start time (RFC 3339 or duration ago)")
	f.StringVar(&auditFlags.until, "until", "", "end time (RFC 3339 or duration ago)")
	f.IntVar(&auditFlags.limit, "limit", 100, "max results (0 for all)")
	f.IntVar(&auditFlags.offset, "offset", 0, "pagination offset")
	f.StringVar(&auditFlags.order, "order", "asc", "sort order: asc, desc")
	auditQueryCmd.MarkFlagsMutuallyExclusive("approved", "blocked")

	auditExportCmd.Flags().StringVar(&auditFlags.format, "format", "json", "export format: json, csv")
	auditExportCmd.Flags().StringVarP(&auditFlags.file, "file", "f", "", "output file (default stdout)")
	auditExportCmd.Flags().BoolVar(&auditFlags.pretty, "pretty", false, "indent JSON output")
}

// auditEntries renders entries as rows.
type auditEntries []*evidence.AuditEntry

func (a auditEntries) Table() cli.Table {
	t := cli.Table{Headers: []string{"SEQ", "TIMESTAMP", "STATUS", "RISK", "USER", "ACTION", "VIOLATIONS"}}
	for _, e := range a {
		t.Rows = append(t.Rows, []string{
			strconv.FormatInt(e.Sequence, 10),
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Status(),
			strconv.FormatFloat(e.RiskScore, 'f', -1, 64),
			e.UserID,
			truncate(e.Action, 40),
			strconv.Itoa(len(e.Violations)),
		})
	}
	return t
}

func (a auditEntries) MarshalYAML() (any, error) {
	return jsonShape([]*evidence.AuditEntry(a))
}

type statsView evidence.Stats

func (s statsView) MarshalYAML() (any, error) {
	return jsonShape(evidence.Stats(s))
}

func (s statsView) Table() cli.Table {
	return cli.Table{
		Headers: []string{"METRIC", "VALUE"},
		Rows: [][]string{
			{"total", strconv.Itoa(s.Total)},
			{"approved", strconv.Itoa(s.Approved)},
			{"blocked", strconv.Itoa(s.Blocked)},
			{"mean_risk_score", strconv.FormatFloat(s.MeanRiskScore, 'f', 2, 64)},
			{"total_violations", strconv.Itoa(s.TotalViolations)},
		},
	}
}

// withStorage opens the configured audit backend for fn.
func withStorage(cmd *cobra.Command, fn func(ctx context.Context, backend evidence.Storage) error) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	backend, err := openStorage(ctx, &cfg.Audit)
	if err != nil {
		return cli.NewCommandError(cmd.CommandPath(), err)
	}
	defer backend.Close()
	return fn(ctx, backend)
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	q, err := buildAuditQuery(time.Now())
	if err != nil {
		return err
	}
	return withStorage(cmd, func(ctx context.Context, backend evidence.Storage) error {
		entries, err := backend.Query(ctx, q)
		if err != nil {
			return cli.NewCommandError("audit query", err)
		}
		if entries == nil {
			entries = []*evidence.AuditEntry{}
		}
		return printResult(cmd, auditEntries(entries))
	})
}

func runAuditStats(cmd *cobra.Command, args []string) error {
	return withStorage(cmd, func(ctx context.Context, backend evidence.Storage) error {
		entries, err := backend.Query(ctx, &evidence.Query{})
		if err != nil {
			return cli.NewCommandError("audit stats", err)
		}
		return printResult(cmd, statsView(evidence.ComputeStats(evidence.Values(entries))))
	})
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	return withStorage(cmd, func(ctx context.Context, backend evidence.Storage) error {
		n, err := backend.Count(ctx, &evidence.Query{})
		if err != nil {
			return cli.NewCommandError("audit verify", err)
		}
		if err := recorder.VerifyStorage(ctx, backend); err != nil {
			return cli.NewCommandError("audit verify", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "audit chain valid (%d entries)\n", n)
		return nil
	})
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	exporter, err := export.ForFormat(auditFlags.format, auditFlags.pretty)
	if err != nil {
		return err
	}
	return withStorage(cmd, func(ctx context.Context, backend evidence.Storage) error {
		entries, err := backend.Query(ctx, &evidence.Query{})
		if err != nil {
			return cli.NewCommandError("audit export", err)
		}
		w, closeFn, err := writeOutput(cmd, auditFlags.file)
		if err != nil {
			return err
		}
		err = exporter.Export(ctx, evidence.Values(entries), w)
		if cerr := closeFn(); err == nil {
			err = cerr
		}
		return err
	})
}

// buildAuditQuery maps the query flags onto an evidence query.
func buildAuditQuery(now time.Time) (*evidence.Query, error) {
	q := &evidence.Query{
		UserID:    auditFlags.user,
		RequestID: auditFlags.requestID,
		Action:    auditFlags.action,
		Limit:     auditFlags.limit,
		Offset:    auditFlags.offset,
		SortOrder: auditFlags.order,
	}
	switch {
	case auditFlags.approved:
		v := true
		q.Approved = &v
	case auditFlags.blocked:
		v := false
		q.Approved = &v
	}
	if auditFlags.minRisk > 0 {
		v := auditFlags.minRisk
		q.MinRiskScore = &v
	}
	var err error
	if q.StartTime, err = parseTimeFlag("since", auditFlags.since, now); err != nil {
		return nil, err
	}
	if q.EndTime, err = parseTimeFlag("until", auditFlags.until, now); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// parseTimeFlag accepts RFC 3339 or a duration before now.
func parseTimeFlag(name, raw string, now time.Time) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return nil, fmt.Errorf("invalid --%s %q: want RFC 3339 time or positive duration", name, raw)
	}
	t := now.Add(-d)
	return &t, nil
}
