package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mercator-hq/covenant/pkg/cli"
)

const testPolicy = "Customer data must be encrypted at rest using AES-256 encryption.\n"

// resetFlags restores every flag to its default so commands can be
// executed repeatedly in one process.
func resetFlags(t *testing.T) {
	t.Helper()
	var walk func(c *cobra.Command)
	reset := func(f *pflag.Flag) {
		f.Changed = false
		switch f.Value.Type() {
		case "stringSlice", "stringArray":
			return
		}
		if err := f.Value.Set(f.DefValue); err != nil {
			t.Fatalf("reset flag %s: %v", f.Name, err)
		}
	}
	walk = func(c *cobra.Command) {
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
	enforceFlags.policies = nil
	enforceFlags.params = nil
	exportFlags.policies = nil
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// workspace writes a policy file and a config using a SQLite trail.
func workspace(t *testing.T) (dir, policy, cfg string) {
	t.Helper()
	dir = t.TempDir()
	policy = filepath.Join(dir, "security.txt")
	if err := os.WriteFile(policy, []byte(testPolicy), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg = filepath.Join(dir, "covenant.yaml")
	yml := "policy:\n  paths: [" + policy + "]\n" +
		"audit:\n  backend: sqlite\n  sqlite:\n    path: " + filepath.Join(dir, "audit.db") + "\n" +
		"telemetry:\n  logging:\n    level: error\n"
	if err := os.WriteFile(cfg, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, policy, cfg
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "Covenant "+Version) {
		t.Errorf("output = %q", out)
	}
}

func TestExtractCommand(t *testing.T) {
	_, policy, _ := workspace(t)

	out, err := execute(t, "extract", policy, "-o", "json")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	var res struct {
		Rules []map[string]any `json:"rules"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(res.Rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(res.Rules))
	}

	out, err = execute(t, "extract", policy)
	if err != nil {
		t.Fatalf("extract text: %v", err)
	}
	if !strings.Contains(out, "RULE_ID") {
		t.Errorf("text output missing header: %q", out)
	}
}

func TestEnforceAndAudit(t *testing.T) {
	_, _, cfg := workspace(t)

	_, err := execute(t, "enforce", "-c", cfg, "-u", "alice",
		"-a", "process customer data", "--param", "encryption_enabled=true")
	if err != nil {
		t.Fatalf("approved enforce: %v", err)
	}

	out, err := execute(t, "enforce", "-c", cfg, "-u", "bob",
		"-a", "process customer data", "-o", "json")
	if code := cli.ExitCode(err); code != cli.ExitBlocked {
		t.Fatalf("exit code = %d (%v), want %d", code, err, cli.ExitBlocked)
	}
	var decision map[string]any
	if err := json.Unmarshal([]byte(out), &decision); err != nil {
		t.Fatalf("decode decision %q: %v", out, err)
	}
	if decision["approved"] != false {
		t.Errorf("approved = %v, want false", decision["approved"])
	}

	out, err = execute(t, "audit", "query", "-c", cfg, "-o", "json")
	if err != nil {
		t.Fatalf("audit query: %v", err)
	}
	var entries []map[string]any
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode entries %q: %v", out, err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	out, err = execute(t, "audit", "query", "-c", cfg, "--blocked", "-o", "json")
	if err != nil {
		t.Fatalf("audit query --blocked: %v", err)
	}
	entries = nil
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode blocked %q: %v", out, err)
	}
	if len(entries) != 1 || entries[0]["user_id"] != "bob" {
		t.Errorf("blocked entries = %v, want bob only", entries)
	}

	out, err = execute(t, "audit", "stats", "-c", cfg, "-o", "json")
	if err != nil {
		t.Fatalf("audit stats: %v", err)
	}
	var stats map[string]any
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats %q: %v", out, err)
	}
	if stats["total"] != 2.0 || stats["approved"] != 1.0 || stats["blocked"] != 1.0 {
		t.Errorf("stats = %v", stats)
	}

	out, err = execute(t, "audit", "verify", "-c", cfg)
	if err != nil {
		t.Fatalf("audit verify: %v", err)
	}
	if !strings.Contains(out, "2 entries") {
		t.Errorf("verify output = %q", out)
	}

	out, err = execute(t, "audit", "export", "-c", cfg, "--format", "csv")
	if err != nil {
		t.Fatalf("audit export: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 3 {
		t.Errorf("csv lines = %d, want header plus 2", len(lines))
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	dir, _, cfg := workspace(t)
	doc := filepath.Join(dir, "rules.json")
	src := filepath.Join(dir, "rules.go")

	if _, err := execute(t, "export", "structured", "-c", cfg, "-f", doc); err != nil {
		t.Fatalf("export structured: %v", err)
	}

	out, err := execute(t, "import", doc, "-c", cfg, "--artifact", src, "--package", "compliance", "-o", "json")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	var summary importSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if summary.TotalRules != 1 || summary.Digest == "" {
		t.Errorf("summary = %+v", summary)
	}

	generated, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"package compliance", "func ValidateAll", "func CheckAll"} {
		if !bytes.Contains(generated, []byte(want)) {
			t.Errorf("generated source missing %q", want)
		}
	}

	out, err = execute(t, "export", "artifact", "-c", cfg)
	if err != nil {
		t.Fatalf("export artifact: %v", err)
	}
	if !strings.Contains(out, "func ValidateAll") {
		t.Errorf("artifact output missing ValidateAll")
	}
}

func TestImportRejectsTamperedDocument(t *testing.T) {
	dir, _, cfg := workspace(t)
	doc := filepath.Join(dir, "rules.json")
	if _, err := execute(t, "export", "structured", "-c", cfg, "-f", doc); err != nil {
		t.Fatalf("export structured: %v", err)
	}
	data, err := os.ReadFile(doc)
	if err != nil {
		t.Fatal(err)
	}
	tampered := bytes.Replace(data, []byte("AES-256"), []byte("AES-128"), 1)
	if err := os.WriteFile(doc, tampered, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "import", doc, "-c", cfg); err == nil {
		t.Fatal("import of tampered document succeeded")
	}
}

func TestConfigCommands(t *testing.T) {
	_, _, cfg := workspace(t)

	out, err := execute(t, "config", "validate", "-c", cfg)
	if err != nil || !strings.Contains(out, "configuration valid") {
		t.Fatalf("validate = %q, %v", out, err)
	}

	out, err = execute(t, "config", "show", "-c", cfg)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "backend: sqlite") {
		t.Errorf("show output missing audit backend: %q", out)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("audit:\n  backend: oracle\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = execute(t, "config", "validate", "-c", bad)
	if code := cli.ExitCode(err); code != cli.ExitConfig {
		t.Errorf("exit code = %d (%v), want %d", code, err, cli.ExitConfig)
	}
}

func TestRunDryRun(t *testing.T) {
	_, _, cfg := workspace(t)
	out, err := execute(t, "run", "-c", cfg, "--dry-run", "--listen", "127.0.0.1:9999")
	if err != nil {
		t.Fatalf("run --dry-run: %v", err)
	}
	if !strings.Contains(out, "configuration valid") {
		t.Errorf("output = %q", out)
	}
}

func TestParseParameters(t *testing.T) {
	file := filepath.Join(t.TempDir(), "params.yaml")
	if err := os.WriteFile(file, []byte("encryption_enabled: false\nretention_days: 30\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	params, err := parseParameters(file, []string{"encryption_enabled=true", "region=eu"})
	if err != nil {
		t.Fatalf("parseParameters: %v", err)
	}
	if len(params) != 3 {
		t.Errorf("params = %v, want 3 entries", params)
	}
	if _, err := parseParameters("", []string{"novalue"}); err == nil {
		t.Error("malformed parameter accepted")
	}
}

func TestParseTimeFlag(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		raw     string
		want    *time.Time
		wantErr bool
	}{
		{raw: ""},
		{raw: "2026-06-30T00:00:00Z", want: ptr(time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC))},
		{raw: "24h", want: ptr(now.Add(-24 * time.Hour))},
		{raw: "-1h", wantErr: true},
		{raw: "yesterday", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseTimeFlag("since", tt.raw, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("got %v, want nil", got)
			case tt.want != nil && (got == nil || !got.Equal(*tt.want)):
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }
