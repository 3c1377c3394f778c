package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "scriptdesk ") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestAPIKeySetAndCheck(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", filepath.Join(t.TempDir(), "scripts.db"))
	t.Setenv("SETTINGS_BACKEND", "sql")

	out, err := run(t, "apikey", "check")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "exists=false") {
		t.Fatalf("expected no key yet, got %q", out)
	}

	if _, err := run(t, "apikey", "set", "short"); err == nil {
		t.Fatalf("expected malformed key to be rejected")
	}

	if _, err := run(t, "apikey", "set", "sk-abcdef123456"); err != nil {
		t.Fatalf("set: %v", err)
	}

	out, err = run(t, "apikey", "check")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "exists=true configured=true length=15") {
		t.Fatalf("unexpected status: %q", out)
	}
}
