package config

import (
	"strings"
	"testing"
)

const sampleConfig = `# busgate gateway
listen 127.0.0.1:9001

auth {
	token {env.BUSGATE_TOKEN}
	token "literal-token"
}

peek {
	default_count 25
	max_count 500
}

store {
	driver sqlite
	path "/var/lib/busgate/busgate.db"
}

observability {
	log json debug
	otlp_endpoint http://127.0.0.1:4318
}
`

func TestParseSampleConfig(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Listen != "127.0.0.1:9001" {
		t.Fatalf("listen: got %q", cfg.Listen)
	}
	if len(cfg.Preamble) != 1 || cfg.Preamble[0] != "# busgate gateway" {
		t.Fatalf("preamble: got %q", cfg.Preamble)
	}
	if cfg.Auth == nil || len(cfg.Auth.Tokens) != 2 {
		t.Fatalf("auth: got %+v", cfg.Auth)
	}
	if cfg.Auth.Tokens[0] != "{env.BUSGATE_TOKEN}" {
		t.Fatalf("placeholder token: got %q", cfg.Auth.Tokens[0])
	}
	if cfg.Peek == nil || cfg.Peek.DefaultCount != "25" || cfg.Peek.MaxCount != "500" {
		t.Fatalf("peek: got %+v", cfg.Peek)
	}
	if cfg.Store == nil || cfg.Store.Driver != "sqlite" || cfg.Store.Path != "/var/lib/busgate/busgate.db" {
		t.Fatalf("store: got %+v", cfg.Store)
	}
	if cfg.Observability == nil || cfg.Observability.LogFormat != "json" || cfg.Observability.LogLevel != "debug" {
		t.Fatalf("observability: got %+v", cfg.Observability)
	}
	if !cfg.Observability.OTLPEndpointSet || cfg.Observability.OTLPEndpoint != "http://127.0.0.1:4318" {
		t.Fatalf("otlp_endpoint: got %+v", cfg.Observability)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "unknown directive", in: "nope x\n", want: "unknown directive"},
		{name: "unclosed block", in: "auth {\n\ttoken a\n", want: "unclosed auth block"},
		{name: "duplicate block", in: "peek {\n}\npeek {\n}\n", want: "duplicate peek block"},
		{name: "unknown peek key", in: "peek {\n\twindow 5\n}\n", want: "unknown peek directive"},
		{name: "unterminated string", in: "listen \"abc\n", want: "unterminated string"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.in))
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	rt, res := cfg.ValidateWithResult()
	if !res.OK() {
		t.Fatalf("empty config must validate, got %v", res.Errors)
	}
	if rt.Listen != DefaultListen {
		t.Fatalf("listen default: got %q", rt.Listen)
	}
	if rt.PeekDefault != DefaultPeekCount || rt.PeekMax != DefaultPeekMaxCount {
		t.Fatalf("peek defaults: got %d/%d", rt.PeekDefault, rt.PeekMax)
	}
	if rt.StoreDriver != "memory" {
		t.Fatalf("store default: got %q", rt.StoreDriver)
	}
}

func TestValidatePlaceholderResolution(t *testing.T) {
	t.Setenv("BUSGATE_TOKEN", "tok-123")

	cfg, err := Parse([]byte("auth {\n\ttoken {env.BUSGATE_TOKEN}\n}\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rt, res := cfg.ValidateWithResult()
	if !res.OK() {
		t.Fatalf("validate: %v", res.Errors)
	}
	if len(rt.AuthTokens) != 1 || string(rt.AuthTokens[0]) != "tok-123" {
		t.Fatalf("tokens: got %q", rt.AuthTokens)
	}
}

func TestValidatePlaceholderDefault(t *testing.T) {
	cfg, err := Parse([]byte("listen {$BUSGATE_MISSING_ADDR:127.0.0.1:9999}\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rt, res := cfg.ValidateWithResult()
	if !res.OK() {
		t.Fatalf("validate: %v", res.Errors)
	}
	if rt.Listen != "127.0.0.1:9999" {
		t.Fatalf("listen: got %q", rt.Listen)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "peek inverted bounds", in: "peek {\n\tdefault_count 50\n\tmax_count 10\n}\n", want: "exceeds max_count"},
		{name: "peek non-numeric", in: "peek {\n\tdefault_count many\n}\n", want: "not a positive integer"},
		{name: "peek zero", in: "peek {\n\tmax_count 0\n}\n", want: "positive integer"},
		{name: "sqlite without path", in: "store {\n\tdriver sqlite\n}\n", want: "requires path"},
		{name: "postgres without dsn", in: "store {\n\tdriver postgres\n}\n", want: "requires dsn"},
		{name: "unknown driver", in: "store {\n\tdriver etcd\n}\n", want: "unknown driver"},
		{name: "bad log level", in: "observability {\n\tlog json loud\n}\n", want: "log level"},
		{name: "bad log format", in: "observability {\n\tlog yaml info\n}\n", want: "log format"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tc.in))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			_, res := cfg.ValidateWithResult()
			if res.OK() {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			found := false
			for _, e := range res.Errors {
				if strings.Contains(e, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %q in %v", tc.want, res.Errors)
			}
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	formatted := Format(cfg)

	// Formatting is a fixed point: format(parse(format(x))) == format(x).
	reparsed, err := Parse(formatted)
	if err != nil {
		t.Fatalf("reparse formatted output: %v\n%s", err, formatted)
	}
	second := Format(reparsed)
	if string(second) != string(formatted) {
		t.Fatalf("format not stable:\nfirst:\n%s\nsecond:\n%s", formatted, second)
	}

	if !strings.Contains(string(formatted), "token {env.BUSGATE_TOKEN}") {
		t.Fatalf("placeholders must survive formatting:\n%s", formatted)
	}
	if !strings.Contains(string(formatted), "# busgate gateway") {
		t.Fatalf("preamble must survive formatting:\n%s", formatted)
	}
}

func TestNormalizeInput(t *testing.T) {
	cfg, err := Parse([]byte("\xEF\xBB\xBFlisten 127.0.0.1:9001\r\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9001" {
		t.Fatalf("listen: got %q", cfg.Listen)
	}
}
