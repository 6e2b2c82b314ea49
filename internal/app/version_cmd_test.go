package app

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestVersionCmdShort(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := runVersionCmd(nil, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	if got := strings.TrimSpace(stdout.String()); got != version {
		t.Fatalf("expected %q, got %q", version, got)
	}
}

func TestVersionCmdLong(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := runVersionCmd([]string{"--long"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"busgate", version, "commit=", "build_date=", "go1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestVersionCmdJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := runVersionCmd([]string{"--json"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	var payload versionPayload
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Version != version {
		t.Fatalf("expected version %q, got %q", version, payload.Version)
	}
	if payload.GoVersion == "" {
		t.Fatal("expected go_version to be populated")
	}
}

func TestVersionCmdRejectsPositionalArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := runVersionCmd([]string{"extra"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}
