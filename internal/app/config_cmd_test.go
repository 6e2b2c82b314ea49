package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Busgatefile")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigCheckOK(t *testing.T) {
	path := writeConfigFile(t, "listen 127.0.0.1:9001\n\npeek {\n\tmax_count 200\n}\n")

	var stdout, stderr bytes.Buffer
	if code := configCheck([]string{"--config", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "ok") {
		t.Fatalf("expected ok, got %q", stdout.String())
	}
}

func TestConfigCheckReportsErrors(t *testing.T) {
	path := writeConfigFile(t, "store {\n\tdriver sqlite\n}\n")

	var stdout, stderr bytes.Buffer
	if code := configCheck([]string{"--config", path}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "requires path") {
		t.Fatalf("expected validation error, got %q", stderr.String())
	}
}

func TestConfigFmtStdout(t *testing.T) {
	path := writeConfigFile(t, "listen    127.0.0.1:9001\npeek   {\n  default_count   5\n}\n")

	var stdout, stderr bytes.Buffer
	if code := configFormat([]string{"--config", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "listen 127.0.0.1:9001\n") {
		t.Fatalf("expected canonical listen line:\n%s", out)
	}
	if !strings.Contains(out, "\tdefault_count 5\n") {
		t.Fatalf("expected canonical peek block:\n%s", out)
	}
}

func TestConfigFmtWrite(t *testing.T) {
	path := writeConfigFile(t, "listen   127.0.0.1:9001\n")

	var stdout, stderr bytes.Buffer
	if code := configFormat([]string{"--config", path, "--write"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "listen 127.0.0.1:9001\n" {
		t.Fatalf("unexpected rewrite: %q", got)
	}
}
