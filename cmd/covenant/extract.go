package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/covenant/pkg/cli"
	"mercator-hq/covenant/pkg/policy/source"
	"mercator-hq/covenant/pkg/rules"
	"mercator-hq/covenant/pkg/rules/extractor"
)

var extractCmd = &cobra.Command{
	Use:   "extract PATH...",
	Short: "Extract rules from policy documents",
	Long: `Extract rules from policy documents and print them.

Every line containing an obligation (must, shall, should, required,
approval required, ...) becomes one rule, classified by category and
compliance level. Directories are searched for files with the configured
policy extensions. Use "-" to read a single document from stdin.

Examples:
  # Extract one document
  covenant extract policies/security.txt

  # Extract a directory as JSON
  covenant extract policies/ -o json

  # Counts only
  covenant extract policies/ --summary`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

var extractFlags struct {
	summary bool
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().BoolVar(&extractFlags.summary, "summary", false, "print only counts by category and compliance level")
}

// extractResult is the output of the extract command.
type extractResult struct {
	Rules   []rules.PolicyRule `json:"rules" yaml:"rules"`
	Summary rules.Summary      `json:"summary" yaml:"summary"`
}

func (r extractResult) Table() cli.Table {
	t := cli.Table{Headers: []string{"RULE_ID", "CATEGORY", "LEVEL", "SECTION", "SOURCE", "LINE", "DESCRIPTION"}}
	for _, rule := range r.Rules {
		t.Rows = append(t.Rows, []string{
			rule.ID,
			string(rule.Category),
			string(rule.Level),
			rule.SectionReference,
			rule.SourceDocument,
			strconv.Itoa(rule.LineIndex),
			truncate(rule.Description, 80),
		})
	}
	return t
}

// summaryTable renders rule counts.
type summaryTable rules.Summary

func (s summaryTable) Table() cli.Table {
	t := cli.Table{Headers: []string{"GROUP", "VALUE", "RULES"}}
	for _, c := range sortedKeys(s.ByCategory) {
		t.Rows = append(t.Rows, []string{"category", string(c), strconv.Itoa(s.ByCategory[c])})
	}
	for _, l := range sortedKeys(s.ByLevel) {
		t.Rows = append(t.Rows, []string{"compliance_level", string(l), strconv.Itoa(s.ByLevel[l])})
	}
	t.Rows = append(t.Rows, []string{"total", "", strconv.Itoa(s.TotalRules)})
	return t
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	x, err := extractor.New(extractorConfig(cfg), logger)
	if err != nil {
		return cli.NewConfigError("extraction", err.Error())
	}

	var docs []source.Document
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		docs = []source.Document{{Source: "stdin", Text: string(data)}}
	} else {
		docs, err = source.NewFileSource(args, cfg.Policy.Extensions).Load(cmd.Context())
		if err != nil {
			return cli.NewCommandError("extract", err)
		}
	}

	var out extractResult
	for _, doc := range docs {
		extracted, err := x.Extract(cmd.Context(), doc.Text, doc.Source)
		if err != nil {
			return cli.NewCommandError("extract", fmt.Errorf("%s: %w", doc.Source, err))
		}
		out.Rules = append(out.Rules, extracted...)
	}
	if out.Rules == nil {
		out.Rules = []rules.PolicyRule{}
	}
	out.Summary = rules.Summarize(out.Rules)

	if extractFlags.summary {
		return printResult(cmd, summaryTable(out.Summary))
	}
	return printResult(cmd, out)
}
