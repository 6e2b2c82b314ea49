package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n" +
		"BUSGATE_TEST_PLAIN=plain\n" +
		"export BUSGATE_TEST_EXPORTED=exported\n" +
		"BUSGATE_TEST_QUOTED=\"with space\"\n" +
		"BUSGATE_TEST_SINGLE='single'\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, key := range []string{"BUSGATE_TEST_PLAIN", "BUSGATE_TEST_EXPORTED", "BUSGATE_TEST_QUOTED", "BUSGATE_TEST_SINGLE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("BUSGATE_TEST_PRESET", "keep-me")

	if err := loadDotenv(path); err != nil {
		t.Fatalf("loadDotenv: %v", err)
	}

	tests := map[string]string{
		"BUSGATE_TEST_PLAIN":    "plain",
		"BUSGATE_TEST_EXPORTED": "exported",
		"BUSGATE_TEST_QUOTED":   "with space",
		"BUSGATE_TEST_SINGLE":   "single",
	}
	for key, want := range tests {
		if got := os.Getenv(key); got != want {
			t.Fatalf("%s: expected %q, got %q", key, want, got)
		}
	}
}

func TestLoadDotenvKeepsExistingEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("BUSGATE_TEST_PRESET=overridden\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("BUSGATE_TEST_PRESET", "keep-me")

	if err := loadDotenv(path); err != nil {
		t.Fatalf("loadDotenv: %v", err)
	}
	if got := os.Getenv("BUSGATE_TEST_PRESET"); got != "keep-me" {
		t.Fatalf("existing env must win, got %q", got)
	}
}

func TestLoadDotenvRejectsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("NOT_A_PAIR\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := loadDotenv(path); err == nil {
		t.Fatal("expected error for line without '='")
	}
}
