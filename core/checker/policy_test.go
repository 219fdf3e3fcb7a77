package checker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy([]byte(`
unions:
  Command: exhaustive
  WalletEvent: open
`))
	if err != nil {
		t.Fatalf("ParsePolicy() error = %v", err)
	}

	tests := []struct {
		union    string
		want     UnionPolicy
		recorded bool
	}{
		{"Command", UnionExhaustive, true},
		{"WalletEvent", UnionOpen, true},
		{"Decision", UnionExhaustive, false},
	}
	for _, tt := range tests {
		got, recorded := p.Union(tt.union)
		if got != tt.want || recorded != tt.recorded {
			t.Errorf("Union(%s) = %s, %v; want %s, %v", tt.union, got, recorded, tt.want, tt.recorded)
		}
	}
}

func TestParsePolicy_Errors(t *testing.T) {
	tests := map[string]string{
		"bad value":   "unions:\n  Command: sometimes\n",
		"unknown key": "unions: {}\nstrict: true\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParsePolicy([]byte(src)); err == nil {
				t.Error("ParsePolicy() should fail")
			}
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	p, err := LoadPolicy("")
	if err != nil {
		t.Fatalf("LoadPolicy(\"\") error = %v", err)
	}
	if _, recorded := p.Union("Command"); recorded {
		t.Error("empty policy should record nothing")
	}

	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("unions:\n  Command: open\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err = LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}
	if up, _ := p.Union("Command"); up != UnionOpen {
		t.Errorf("Union(Command) = %s, want open", up)
	}

	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadPolicy() should fail for a missing file")
	}
}

func TestPolicy_NilSafe(t *testing.T) {
	var p *Policy
	if up, recorded := p.Union("X"); up != UnionExhaustive || recorded {
		t.Error("nil policy should treat unions as unrecorded exhaustive")
	}
}

func TestParsePolicy_ReportsFirstBadUnionByName(t *testing.T) {
	src := []byte(`
unions:
  Zeta: closed
  Alpha: sometimes
  Mid: maybe
`)
	for i := 0; i < 20; i++ {
		_, err := ParsePolicy(src)
		if err == nil {
			t.Fatal("ParsePolicy() should reject unknown values")
		}
		if !strings.Contains(err.Error(), `union "Alpha"`) {
			t.Fatalf("error = %v, want it to name Alpha", err)
		}
	}
}

func TestPolicy_Gate(t *testing.T) {
	changes := []SchemaChange{
		{Kind: FieldAdded, Type: "TransactionAtom", Member: "leader_fee", Breaking: true},
		{Kind: FieldAdded, Type: "Output", Member: "memo"},
	}

	tests := []struct {
		name     string
		failWhen string
		changes  []SchemaChange
		want     bool
	}{
		{"no expression", "", changes, false},
		{"any breaking", "breaking > 0", changes, true},
		{"any breaking, none present", "breaking > 0", changes[1:], false},
		{"total threshold", "total >= 3", changes, false},
		{"breaking outside a type", `any(changes, .breaking && .type != "TransactionAtom")`, changes, false},
		{"classification match", `any(changes, .classification == "FieldAddedCompatible")`, changes, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "unions: {}\n"
			if tt.failWhen != "" {
				src += "fail_when: '" + tt.failWhen + "'\n"
			}
			p, err := ParsePolicy([]byte(src))
			if err != nil {
				t.Fatalf("ParsePolicy() error = %v", err)
			}
			got, err := p.Gate(tt.changes)
			if err != nil {
				t.Fatalf("Gate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Gate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePolicy_BadGate(t *testing.T) {
	tests := []struct {
		name     string
		failWhen string
	}{
		{"syntax", "breaking >"},
		{"not boolean", "total + 1"},
		{"unknown name", "nope > 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicy([]byte("fail_when: '" + tt.failWhen + "'\n"))
			if err == nil || !strings.Contains(err.Error(), "fail_when") {
				t.Errorf("ParsePolicy() error = %v, want a fail_when error", err)
			}
		})
	}
}

func TestPolicy_GateNil(t *testing.T) {
	var p *Policy
	if failed, err := p.Gate([]SchemaChange{{Breaking: true}}); failed || err != nil {
		t.Errorf("nil Gate() = %v, %v", failed, err)
	}
}
