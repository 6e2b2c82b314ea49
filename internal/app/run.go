package app

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nuetzliches/busgate/internal/config"
	"github.com/nuetzliches/busgate/internal/gateway"
	"github.com/nuetzliches/busgate/internal/sbus"
	"github.com/nuetzliches/busgate/internal/store"
)

func run() int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "./Busgatefile", "path to config file")
	pidFile := fs.String("pid-file", "", "write process PID to file")
	logLevel := fs.String("log-level", "", "log level override (debug|info|warn|error)")
	dotenvPath := fs.String("dotenv", "", "load environment variables from file (dev only)")
	watch := fs.Bool("watch", false, "watch config file for reload")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return 2
	}

	bootLogger, err := newLogger("json", *logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}
	slog.SetDefault(bootLogger)

	releasePIDFile, err := claimPIDFile(strings.TrimSpace(*pidFile))
	if err != nil {
		bootLogger.Error("pid_file_failed", slog.Any("err", err))
		return 1
	}
	defer releasePIDFile()

	if strings.TrimSpace(*dotenvPath) != "" {
		if err := loadDotenv(strings.TrimSpace(*dotenvPath)); err != nil {
			bootLogger.Error("dotenv_failed", slog.Any("err", err))
			return 1
		}
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		bootLogger.Error("read_config_failed", slog.Any("err", err))
		return 1
	}
	rt, res := cfg.ValidateWithResult()
	if !res.OK() {
		bootLogger.Error("config_invalid", slog.String("errors", strings.Join(res.Errors, "; ")))
		return 1
	}
	for _, w := range res.Warnings {
		bootLogger.Warn("config_warning", slog.String("warning", w))
	}

	level := rt.LogLevel
	if strings.TrimSpace(*logLevel) != "" {
		level = *logLevel
	}
	logger, err := newLogger(rt.LogFormat, level)
	if err != nil {
		bootLogger.Error("logger_failed", slog.Any("err", err))
		return 1
	}
	slog.SetDefault(logger)
	logger.Info("config_ok", slog.String("path", *configPath))

	appMetrics := newRuntimeMetrics()

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracingEnabled := rt.OTLPEndpoint != ""
	if tracingEnabled {
		shutdownTracing, err := initTracing(context.Background(), rt.OTLPEndpoint, func(err error) {
			appMetrics.incTracingExportErrors()
			logger.Error("tracing_export_failed", slog.Any("err", err))
		})
		if err != nil {
			appMetrics.incTracingInitFailures()
			logger.Error("tracing_init_failed", slog.Any("err", err))
			return 1
		}
		appMetrics.setTracingEnabled(true)
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = shutdownTracing(sctx)
		}()
		logger.Info("tracing_enabled")
	}

	profileStore, backend, err := openProfileStore(rt)
	if err != nil {
		logger.Error("open_store_failed", slog.Any("err", err))
		return 1
	}
	defer func() { _ = profileStore.Close() }()
	logger.Info("store_backend_selected", slog.String("backend", backend))

	state := newRuntimeState(rt)

	srv := gateway.NewServer(sbus.NewAzureDialer())
	srv.Store = profileStore
	srv.Logger = logger
	srv.Authorize = state.authorize
	srv.ResolvePeekLimits = state.peekLimits
	srv.HealthDiagnostics = appMetrics.diagnostics
	srv.ObserveOperation = appMetrics.observeOperation

	mux := http.NewServeMux()
	mux.Handle("/metrics", appMetrics.handler())
	mux.Handle("/", srv)

	handler := withAccessLog(logger, mux)
	handler = wrapTracingHandler(tracingEnabled, "busgate", handler)

	ln, err := net.Listen("tcp", rt.Listen)
	if err != nil {
		logger.Error("listen_failed", slog.String("addr", rt.Listen), slog.Any("err", err))
		return 1
	}
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		err := httpServer.Serve(ln)
		if err == nil || err == http.ErrServerClosed {
			return
		}
		logger.Error("http_server_error", slog.Any("err", err))
		cancel()
	}()
	logger.Info("listening", slog.String("addr", rt.Listen))

	var reloadMu sync.Mutex
	reloadNow := func(trigger string) {
		reloadMu.Lock()
		defer reloadMu.Unlock()
		if reloadConfig(*configPath, state, logger, trigger) {
			appMetrics.incConfigReloads()
		} else {
			appMetrics.incConfigReloadFailures()
		}
	}

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hupCh:
				reloadNow("signal_sighup")
			}
		}
	}()

	if *watch {
		go watchConfig(ctx, *configPath, logger, func() {
			reloadNow("watch")
		})
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	return 0
}

func openProfileStore(rt config.Runtime) (store.Store, string, error) {
	switch rt.StoreDriver {
	case "memory":
		return store.NewMemoryStore(), "memory", nil
	case "sqlite":
		s, err := store.NewSQLiteStore(rt.StorePath)
		if err != nil {
			return nil, "", err
		}
		return s, "sqlite", nil
	case "postgres":
		s, err := store.NewPostgresStore(rt.StoreDSN)
		if err != nil {
			return nil, "", err
		}
		return s, "postgres", nil
	default:
		return nil, "", fmt.Errorf("unknown store driver %q", rt.StoreDriver)
	}
}

// runtimeState holds the configuration that reloads live: auth tokens and
// peek bounds. Listener address and store driver changes need a restart.
type runtimeState struct {
	mu     sync.RWMutex
	auth   gateway.Authorizer
	limits sbus.PeekLimits
}

func newRuntimeState(rt config.Runtime) *runtimeState {
	s := &runtimeState{}
	s.apply(rt)
	return s
}

func (s *runtimeState) apply(rt config.Runtime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = gateway.BearerTokenAuthorizer(rt.AuthTokens)
	s.limits = sbus.PeekLimits{Default: rt.PeekDefault, Min: 1, Max: rt.PeekMax}
}

func (s *runtimeState) authorize(r *http.Request) bool {
	s.mu.RLock()
	auth := s.auth
	s.mu.RUnlock()
	if auth == nil {
		return true
	}
	return auth(r)
}

func (s *runtimeState) peekLimits() sbus.PeekLimits {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limits
}

func reloadConfig(path string, state *runtimeState, logger *slog.Logger, trigger string) bool {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		logger.Error("config_reload_failed", slog.Any("err", err), slog.String("trigger", trigger))
		return false
	}
	rt, res := cfg.ValidateWithResult()
	if !res.OK() {
		logger.Error("config_reload_failed", slog.String("errors", strings.Join(res.Errors, "; ")), slog.String("trigger", trigger))
		return false
	}

	state.apply(rt)
	logger.Info("config_reloaded_ok", slog.String("trigger", trigger))
	return true
}

func watchConfig(ctx context.Context, path string, logger *slog.Logger, reload func()) {
	if logger == nil {
		logger = slog.Default()
	}
	if reload == nil {
		return
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("watch_disabled", slog.Any("err", err))
		return
	}
	defer w.Close()

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := w.Add(dir); err != nil {
		logger.Warn("watch_disabled", slog.Any("err", err))
		return
	}

	logger.Info("watching_config", slog.String("path", path))

	// Debounce to coalesce bursty editor/atomic-write events.
	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(200 * time.Millisecond)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(200 * time.Millisecond)
		}
		timerCh = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			schedule()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("watch_error", slog.Any("err", err))
		case <-timerCh:
			timerCh = nil
			reload()
		}
	}
}

func claimPIDFile(pidFile string) (func(), error) {
	pidFile = strings.TrimSpace(pidFile)
	if pidFile == "" {
		return func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(pidFile), 0o755); err != nil {
		return nil, err
	}

	if pid, err := readPIDFile(pidFile); err == nil && pid > 0 {
		if pidRunning(pid) {
			return nil, fmt.Errorf("pid file %q points to running process %d", pidFile, pid)
		}
	}

	pid := os.Getpid()
	if err := writePIDFile(pidFile, pid); err != nil {
		return nil, err
	}

	return func() {
		cur, err := readPIDFile(pidFile)
		if err != nil {
			return
		}
		if cur == pid {
			_ = os.Remove(pidFile)
		}
	}, nil
}

func writePIDFile(pidFile string, pid int) error {
	tmp, err := os.CreateTemp(filepath.Dir(pidFile), "."+filepath.Base(pidFile)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	keepTemp := false
	defer func() {
		_ = tmp.Close()
		if !keepTemp {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(tmp, "%d\n", pid); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, pidFile); err != nil {
		return err
	}
	keepTemp = true
	return nil
}

func readPIDFile(pidFile string) (int, error) {
	b, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}
	raw := strings.TrimSpace(string(b))
	if raw == "" {
		return 0, fmt.Errorf("pid file %q is empty", pidFile)
	}
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %q contains invalid pid %q", pidFile, raw)
	}
	return pid, nil
}

func pidRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	if isZombiePID(pid) {
		return false
	}
	return processExists(pid)
}

func isZombiePID(pid int) bool {
	statPath := fmt.Sprintf("/proc/%d/stat", pid)
	data, err := os.ReadFile(statPath)
	if err != nil {
		return false
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return false
	}
	return fields[2] == "Z"
}
