package app

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/nuetzliches/busgate/internal/config"
)

func TestRuntimeStateReload(t *testing.T) {
	rt := config.Runtime{
		PeekDefault: 10,
		PeekMax:     1000,
	}
	state := newRuntimeState(rt)

	// No tokens configured means open access.
	req := httptest.NewRequest(http.MethodGet, "/queues", nil)
	if !state.authorize(req) {
		t.Fatal("expected open access without tokens")
	}
	if limits := state.peekLimits(); limits.Default != 10 || limits.Max != 1000 {
		t.Fatalf("unexpected limits %+v", limits)
	}

	rt.AuthTokens = [][]byte{[]byte("tok")}
	rt.PeekDefault = 25
	rt.PeekMax = 200
	state.apply(rt)

	if state.authorize(req) {
		t.Fatal("expected rejection after tokens were added")
	}
	req.Header.Set("Authorization", "Bearer tok")
	if !state.authorize(req) {
		t.Fatal("expected acceptance with token")
	}
	if limits := state.peekLimits(); limits.Default != 25 || limits.Max != 200 {
		t.Fatalf("limits not reloaded: %+v", limits)
	}
}

func TestReloadConfigAppliesLiveSubset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Busgatefile")
	if err := os.WriteFile(path, []byte("peek {\n\tdefault_count 5\n\tmax_count 50\n}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	state := newRuntimeState(config.Runtime{PeekDefault: 10, PeekMax: 1000})
	if !reloadConfig(path, state, newDiscardLogger(), "test") {
		t.Fatal("expected reload to succeed")
	}
	if limits := state.peekLimits(); limits.Default != 5 || limits.Max != 50 {
		t.Fatalf("limits not applied: %+v", limits)
	}

	// A broken file leaves the running state untouched.
	if err := os.WriteFile(path, []byte("peek {\n\tdefault_count broken\n}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if reloadConfig(path, state, newDiscardLogger(), "test") {
		t.Fatal("expected reload failure")
	}
	if limits := state.peekLimits(); limits.Default != 5 || limits.Max != 50 {
		t.Fatalf("failed reload must not change limits: %+v", limits)
	}
}

func TestClaimPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busgate.pid")

	release, err := claimPIDFile(path)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("expected own pid %d, got %d", os.Getpid(), pid)
	}

	// A second claim against our live process must fail.
	if _, err := claimPIDFile(path); err == nil {
		t.Fatal("expected conflict with running process")
	}

	release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("release must remove the pid file, stat err=%v", err)
	}
}

func TestClaimPIDFileReclaimsStalePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busgate.pid")
	// A pid far beyond the kernel's pid_max cannot belong to a live process.
	if err := os.WriteFile(path, []byte("999999999\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	release, err := claimPIDFile(path)
	if err != nil {
		t.Fatalf("expected stale pid to be reclaimed: %v", err)
	}
	defer release()

	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("expected own pid, got %d", pid)
	}
}
