package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/artpar/schemagate/app"
)

const consensusSchema = `
types:
  - name: Command
    kind: tagged-union
    variants:
      - { tag: LocalOnly, payload: TransactionAtom }
      - { tag: Prepare, payload: TransactionAtom }
      - { tag: EndEpoch }
  - name: TransactionAtom
    kind: struct
    export_to: consensus
    fields:
      - { name: id, type: string }
      - { name: transaction_fee, type: u64 }
`

type workspace struct {
	dir     string
	schemas string
	out     string
}

func setupWorkspace(t *testing.T) *workspace {
	t.Helper()

	dir := t.TempDir()
	ws := &workspace{
		dir:     dir,
		schemas: filepath.Join(dir, "schemas"),
		out:     filepath.Join(dir, "bindings"),
	}
	if err := os.Mkdir(ws.schemas, 0755); err != nil {
		t.Fatal(err)
	}
	ws.writeSchema(t, consensusSchema)

	cfg := `
schema:
  dir: "` + ws.schemas + `"
output:
  dir: "` + ws.out + `"
database:
  dsn: "` + filepath.Join(dir, "history.db") + `"
logging:
  level: "error"
  format: "json"
`
	cfgPath := filepath.Join(dir, "schemagate.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	return ws
}

func (ws *workspace) writeSchema(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(ws.schemas, "consensus.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// run executes the CLI with flags reset to their defaults.
func (ws *workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(ws.dir, "schemagate.yaml")}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestGenerateAndCheckDrift(t *testing.T) {
	ws := setupWorkspace(t)

	out, err := ws.run(t, "generate")
	if err != nil {
		t.Fatalf("generate error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Generated 2 file(s) for 2 type(s)") {
		t.Errorf("generate output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(ws.out, "consensus", "TransactionAtom.ts")); err != nil {
		t.Errorf("TransactionAtom.ts not written: %v", err)
	}

	if out, err := ws.run(t, "check", "--drift"); err != nil {
		t.Fatalf("check on fresh output error: %v\n%s", err, out)
	}

	path := filepath.Join(ws.out, "Command.ts")
	if err := os.WriteFile(path, []byte("// edited by hand\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws.out, "notes.txt"), []byte("mine\n"), 0644); err != nil {
		t.Fatal(err)
	}
	out, err = ws.run(t, "check", "--drift")
	if !errors.Is(err, errCheckFailed) {
		t.Fatalf("check error = %v, want errCheckFailed", err)
	}
	for _, want := range []string{"Command.ts", "notes.txt (not generated)", "was generated from schema"} {
		if !strings.Contains(out, want) {
			t.Errorf("check output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerate_LayoutFlag(t *testing.T) {
	ws := setupWorkspace(t)

	if out, err := ws.run(t, "generate", "--layout", "single"); err != nil {
		t.Fatalf("generate error: %v\n%s", err, out)
	}
	if _, err := os.Stat(filepath.Join(ws.out, "index.ts")); err != nil {
		t.Errorf("index.ts not written: %v", err)
	}
}

func TestGenerate_UnsupportedShape(t *testing.T) {
	ws := setupWorkspace(t)
	ws.writeSchema(t, `
types:
  - name: Loop
    kind: struct
    fields:
      - { name: next, type: Loop }
`)

	_, err := ws.run(t, "generate")
	var failed *app.ExportFailedError
	if !errors.As(err, &failed) || len(failed.Failures) != 1 {
		t.Fatalf("generate error = %v, want one export failure", err)
	}
	if _, err := os.Stat(ws.out); !os.IsNotExist(err) {
		t.Error("nothing should be written when export fails")
	}
}

func TestPublishHistoryAndBreakingCheck(t *testing.T) {
	ws := setupWorkspace(t)

	out, err := ws.run(t, "publish", "--label", "v1")
	if err != nil {
		t.Fatalf("publish error: %v\n%s", err, out)
	}

	out, err = ws.run(t, "history")
	if err != nil || !strings.Contains(out, "v1") {
		t.Fatalf("history = %q, %v", out, err)
	}

	if _, err := ws.run(t, "publish"); err == nil {
		t.Error("publishing the same version twice should fail")
	}

	ws.writeSchema(t, strings.Replace(consensusSchema,
		"- { name: transaction_fee, type: u64 }",
		"- { name: transaction_fee, type: u64 }\n      - { name: leader_fee, type: u64 }", 1))

	out, err = ws.run(t, "check", "--base-version", "latest")
	if err != nil {
		t.Fatalf("check without --fail-on-breaking error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "FieldAddedBreaking TransactionAtom.leader_fee") {
		t.Errorf("check output = %q", out)
	}

	if _, err := ws.run(t, "check", "--base-version", "latest", "--fail-on-breaking"); !errors.Is(err, errCheckFailed) {
		t.Errorf("check --fail-on-breaking error = %v, want errCheckFailed", err)
	}
}

func TestCheck_BaseDir(t *testing.T) {
	ws := setupWorkspace(t)

	base := filepath.Join(ws.dir, "base")
	if err := os.Mkdir(base, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "consensus.yaml"), []byte(consensusSchema), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := ws.run(t, "check", "--base-dir", base, "--fail-on-breaking")
	if err != nil {
		t.Fatalf("check error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "No changes.") {
		t.Errorf("identical base should report no changes:\n%s", out)
	}
}

func TestValidate(t *testing.T) {
	ws := setupWorkspace(t)

	out, err := ws.run(t, "validate")
	if err != nil {
		t.Fatalf("validate error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Validation passed.") {
		t.Errorf("validate output = %q", out)
	}

	ws.writeSchema(t, `
types:
  - name: Holder
    kind: struct
    fields:
      - { name: x, type: Missing }
`)
	if _, err := ws.run(t, "validate"); err == nil {
		t.Error("validate should fail for an unresolved reference")
	}
}

func TestVersionCommand(t *testing.T) {
	ws := setupWorkspace(t)

	out, err := ws.run(t, "version")
	if err != nil || !strings.HasPrefix(out, "schemagate "+version) {
		t.Errorf("version = %q, %v", out, err)
	}
}

func TestReportMarks(t *testing.T) {
	tests := []struct {
		color bool
		ansi  bool
	}{
		{false, false},
		{true, true},
	}
	for _, tt := range tests {
		check, cross, warn := reportMarks(tt.color)
		for _, m := range []string{check, cross, warn} {
			if strings.Contains(m, "\033[") != tt.ansi {
				t.Errorf("reportMarks(%v) mark %q, want ansi=%v", tt.color, m, tt.ansi)
			}
		}
	}
}
