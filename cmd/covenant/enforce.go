package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mercator-hq/covenant/pkg/cli"
	"mercator-hq/covenant/pkg/policy/engine"
)

var enforceFlags struct {
	policies   []string
	user       string
	action     string
	params     []string
	paramsFile string
}

var enforceCmd = &cobra.Command{
	Use:   "enforce",
	Short: "Check one action against the policy rules",
	Long: `Check one action against the rules extracted from the policy documents
and record the decision in the configured audit trail.

Parameters are typed: "true" and "false" are booleans, numeric text is a
number and anything else a string. A parameters file holds a flat JSON or
YAML object; --param values override it.

The command exits 0 when the action is approved and 2 when it is blocked.

Examples:
  covenant enforce --policy policies/ --user alice \
    --action "process customer data" \
    --param encryption_enabled=true --param encryption_algorithm=AES-256

  covenant enforce --policy policies/ --user bob --action "store user records" \
    --params-file params.yaml -o json`,
	Args: cobra.NoArgs,
	RunE: runEnforce,
}

func init() {
	rootCmd.AddCommand(enforceCmd)
	enforceCmd.Flags().StringSliceVarP(&enforceFlags.policies, "policy", "p", nil, "policy files or directories (default policy.paths)")
	enforceCmd.Flags().StringVarP(&enforceFlags.user, "user", "u", "", "user performing the action")
	enforceCmd.Flags().StringVarP(&enforceFlags.action, "action", "a", "", "action description")
	enforceCmd.Flags().StringArrayVar(&enforceFlags.params, "param", nil, "parameter as key=value (repeatable)")
	enforceCmd.Flags().StringVar(&enforceFlags.paramsFile, "params-file", "", "JSON or YAML file with parameters")
	_ = enforceCmd.MarkFlagRequired("action")
}

// decisionView renders a decision as field/value rows.
type decisionView struct {
	*engine.Decision
}

// MarshalYAML emits the same fields as the JSON form.
func (d decisionView) MarshalYAML() (any, error) {
	return jsonShape(d.Decision)
}

func (d decisionView) Table() cli.Table {
	t := cli.Table{Headers: []string{"FIELD", "VALUE"}}
	add := func(k, v string) { t.Rows = append(t.Rows, []string{k, v}) }
	add("request_id", d.RequestID)
	add("status", d.Status)
	add("risk_score", strconv.FormatFloat(d.RiskScore, 'f', -1, 64))
	add("rules_evaluated", strconv.Itoa(d.Validation.RulesEvaluated))
	if d.AuditEntry != nil {
		add("audit_sequence", strconv.FormatInt(d.AuditEntry.Sequence, 10))
		add("policy_version", d.AuditEntry.PolicyVersion)
	}
	for _, v := range d.Violations {
		add("violation", v)
	}
	for _, w := range d.Warnings {
		add("warning", w)
	}
	return t
}

func runEnforce(cmd *cobra.Command, args []string) error {
	params, err := parseParameters(enforceFlags.paramsFile, enforceFlags.params)
	if err != nil {
		return err
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	rec, err := openRecorder(ctx, cfg, logger)
	if err != nil {
		return cli.NewCommandError("enforce", err)
	}
	defer rec.Close()

	eng, err := newEngine(cfg, rec, logger)
	if err != nil {
		return err
	}
	if _, err := loadPolicies(ctx, cfg, eng, policyPaths(cfg, enforceFlags.policies), logger); err != nil {
		return cli.NewCommandError("enforce", err)
	}

	decision, err := eng.Enforce(ctx, engine.Request{
		UserID:     enforceFlags.user,
		Action:     enforceFlags.action,
		Parameters: params,
	})
	if err != nil {
		return cli.NewCommandError("enforce", err)
	}

	if err := printResult(cmd, decisionView{decision}); err != nil {
		return err
	}
	if !decision.Approved {
		return &cli.ExitError{Code: cli.ExitBlocked}
	}
	return nil
}

// parseParameters merges a parameters file with key=value flags.
func parseParameters(file string, flags []string) (engine.Parameters, error) {
	params := engine.Parameters{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read parameters: %w", err)
		}
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse parameters %s: %w", file, err)
		}
		params, err = engine.ParametersFromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("parameters %s: %w", file, err)
		}
	}
	for _, p := range flags {
		key, value, err := engine.ParseParameter(p)
		if err != nil {
			return nil, err
		}
		params[key] = value
	}
	return params, nil
}
