package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/covenant/pkg/artifact"
	"mercator-hq/covenant/pkg/cli"
	"mercator-hq/covenant/pkg/evidence/recorder"
	"mercator-hq/covenant/pkg/policy/engine"
)

var exportFlags struct {
	policies    []string
	file        string
	format      string
	packageName string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the rules extracted from policy documents",
	Long: `Export the rules extracted from policy documents.

Subcommands:
  structured - interchange document (JSON or YAML) carrying every rule,
               its constraints, metadata and the rule set digest
  artifact   - generated Go validator source with one check per rule`,
}

var exportStructuredCmd = &cobra.Command{
	Use:   "structured",
	Short: "Export the structured interchange document",
	Long: `Export the structured interchange document.

The document can be re-imported with "covenant import" or POST
/v1/rules/import and reproduces the same rule set digest.

Examples:
  covenant export structured --policy policies/ --file rules.json
  covenant export structured --policy policies/ --format yaml`,
	Args: cobra.NoArgs,
	RunE: runExportStructured,
}

var exportArtifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Export generated validator source",
	Long: `Export generated Go validator source.

The generated file is self-contained: it declares ValidateAll, which checks
the applicable rules for an action, and CheckAll, which checks every rule.

Examples:
  covenant export artifact --policy policies/ --file grcrules/rules.go
  covenant export artifact --policy policies/ --package compliance`,
	Args: cobra.NoArgs,
	RunE: runExportArtifact,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportStructuredCmd, exportArtifactCmd)

	exportCmd.PersistentFlags().StringSliceVarP(&exportFlags.policies, "policy", "p", nil, "policy files or directories (default policy.paths)")
	exportCmd.PersistentFlags().StringVarP(&exportFlags.file, "file", "f", "", "output file (default stdout)")
	exportStructuredCmd.Flags().StringVar(&exportFlags.format, "format", "json", "document format: json, yaml")
	exportArtifactCmd.Flags().StringVar(&exportFlags.packageName, "package", "", "package name of the generated source (default artifact.package_name)")
}

// exportEngine loads the policies into an engine with a throwaway trail.
func exportEngine(cmd *cobra.Command) (*engine.Engine, *artifact.Options, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, nil, err
	}
	if exportFlags.packageName != "" {
		cfg.Artifact.PackageName = exportFlags.packageName
	}
	eng, err := newEngine(cfg, recorder.New(nil, nil, logger), logger)
	if err != nil {
		return nil, nil, err
	}
	if _, err := loadPolicies(cmd.Context(), cfg, eng, policyPaths(cfg, exportFlags.policies), logger); err != nil {
		return nil, nil, cli.NewCommandError("export", err)
	}
	return eng, artifactOptions(cfg), nil
}

func runExportStructured(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(exportFlags.format)
	if format != "json" && format != "yaml" && format != "yml" {
		return fmt.Errorf("unsupported document format %q (json, yaml)", exportFlags.format)
	}
	eng, opts, err := exportEngine(cmd)
	if err != nil {
		return err
	}
	doc, err := eng.ExportStructured(opts)
	if err != nil {
		return cli.NewCommandError("export structured", err)
	}

	w, closeFn, err := writeOutput(cmd, exportFlags.file)
	if err != nil {
		return err
	}
	if format == "json" {
		err = doc.WriteJSON(w)
	} else {
		err = doc.WriteYAML(w)
	}
	if cerr := closeFn(); err == nil {
		err = cerr
	}
	return err
}

func runExportArtifact(cmd *cobra.Command, args []string) error {
	eng, opts, err := exportEngine(cmd)
	if err != nil {
		return err
	}
	src, err := eng.ExportArtifact(opts)
	if err != nil {
		return cli.NewCommandError("export artifact", err)
	}

	w, closeFn, err := writeOutput(cmd, exportFlags.file)
	if err != nil {
		return err
	}
	_, err = w.Write(src)
	if cerr := closeFn(); err == nil {
		err = cerr
	}
	return err
}
