// Package config parses the Busgatefile, the directive-style configuration
// for the gateway. The grammar is line-oriented: a directive name followed by
// arguments, with `{ ... }` blocks for nested sections. Values may reference
// environment variables with {env.NAME} or {$NAME:default} placeholders,
// resolved at validation time so a parsed file can still be formatted
// verbatim.
package config

import (
	"fmt"
	"strings"
)

const (
	DefaultListen       = "127.0.0.1:8420"
	DefaultPeekCount    = 10
	DefaultPeekMaxCount = 1000
	DefaultStoreDriver  = "memory"
	DefaultLogFormat    = "json"
	DefaultLogLevel     = "info"
)

// Config is the parsed, user-authored configuration file. Optional blocks
// are pointers so "not set" (defaults apply) and "set but empty" stay
// distinguishable.
type Config struct {
	// Preamble holds leading comment lines (including the '#'). It is
	// preserved by `config fmt` so file headers survive formatting.
	Preamble []string

	Listen       string
	ListenQuoted bool

	Auth          *AuthBlock
	Peek          *PeekBlock
	Store         *StoreBlock
	Observability *ObservabilityBlock
}

type AuthBlock struct {
	Tokens       []string
	TokensQuoted []bool
}

type PeekBlock struct {
	DefaultCount    string
	DefaultCountSet bool
	MaxCount        string
	MaxCountSet     bool
}

type StoreBlock struct {
	Driver     string
	Path       string
	PathQuoted bool
	DSN        string
	DSNQuoted  bool
}

type ObservabilityBlock struct {
	LogFormat       string
	LogLevel        string
	OTLPEndpoint    string
	OTLPEndpointSet bool
}

// ValidationResult separates hard errors from warnings so callers can treat
// warnings as advisory (`config check`) or ignore them (runtime load).
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

func (r *ValidationResult) OK() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) errf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Runtime is the validated, placeholder-resolved view the application runs
// on.
type Runtime struct {
	Listen       string
	AuthTokens   [][]byte
	PeekDefault  int
	PeekMax      int
	StoreDriver  string
	StorePath    string
	StoreDSN     string
	LogFormat    string
	LogLevel     string
	OTLPEndpoint string
}

// ValidateWithResult resolves placeholders and checks the configuration.
// The returned Runtime is only meaningful when the result has no errors.
func (c *Config) ValidateWithResult() (Runtime, *ValidationResult) {
	res := &ValidationResult{}
	rt := Runtime{
		Listen:      DefaultListen,
		PeekDefault: DefaultPeekCount,
		PeekMax:     DefaultPeekMaxCount,
		StoreDriver: DefaultStoreDriver,
		LogFormat:   DefaultLogFormat,
		LogLevel:    DefaultLogLevel,
	}

	if c.Listen != "" {
		rt.Listen = resolveValue(c.Listen, "listen", res)
		if strings.TrimSpace(rt.Listen) == "" {
			res.errf("listen: resolved to empty address")
		}
	}

	if c.Auth != nil {
		for i, tok := range c.Auth.Tokens {
			val := resolveValue(tok, fmt.Sprintf("auth.token[%d]", i), res)
			val = strings.TrimSpace(val)
			if val == "" {
				res.errf("auth.token[%d]: resolved to empty token", i)
				continue
			}
			rt.AuthTokens = append(rt.AuthTokens, []byte(val))
		}
	}

	if c.Peek != nil {
		if c.Peek.DefaultCountSet {
			rt.PeekDefault = parsePositiveInt(resolveValue(c.Peek.DefaultCount, "peek.default_count", res), "peek.default_count", res)
		}
		if c.Peek.MaxCountSet {
			rt.PeekMax = parsePositiveInt(resolveValue(c.Peek.MaxCount, "peek.max_count", res), "peek.max_count", res)
		}
		if res.OK() && rt.PeekDefault > rt.PeekMax {
			res.errf("peek: default_count %d exceeds max_count %d", rt.PeekDefault, rt.PeekMax)
		}
	}

	if c.Store != nil {
		rt.StoreDriver = strings.TrimSpace(resolveValue(c.Store.Driver, "store.driver", res))
		rt.StorePath = resolveValue(c.Store.Path, "store.path", res)
		rt.StoreDSN = resolveValue(c.Store.DSN, "store.dsn", res)
		switch rt.StoreDriver {
		case "memory":
		case "sqlite":
			if strings.TrimSpace(rt.StorePath) == "" {
				res.errf("store: driver sqlite requires path")
			}
		case "postgres":
			if strings.TrimSpace(rt.StoreDSN) == "" {
				res.errf("store: driver postgres requires dsn")
			}
		default:
			res.errf("store: unknown driver %q (memory, sqlite, postgres)", rt.StoreDriver)
		}
	}

	if c.Observability != nil {
		if c.Observability.LogFormat != "" {
			rt.LogFormat = c.Observability.LogFormat
		}
		if c.Observability.LogLevel != "" {
			rt.LogLevel = c.Observability.LogLevel
		}
		switch rt.LogFormat {
		case "json", "text":
		default:
			res.errf("observability: log format %q (json, text)", rt.LogFormat)
		}
		switch rt.LogLevel {
		case "debug", "info", "warn", "error":
		default:
			res.errf("observability: log level %q (debug, info, warn, error)", rt.LogLevel)
		}
		if c.Observability.OTLPEndpointSet {
			rt.OTLPEndpoint = strings.TrimSpace(resolveValue(c.Observability.OTLPEndpoint, "observability.otlp_endpoint", res))
			if rt.OTLPEndpoint == "" {
				res.errf("observability: otlp_endpoint resolved to empty value")
			}
		}
	}

	return rt, res
}

func parsePositiveInt(raw, field string, res *ValidationResult) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		res.errf("%s: must be a positive integer", field)
		return 0
	}
	n := 0
	for _, r := range raw {
		if r < '0' || r > '9' {
			res.errf("%s: %q is not a positive integer", field, raw)
			return 0
		}
		n = n*10 + int(r-'0')
		if n > 1<<30 {
			res.errf("%s: %q is out of range", field, raw)
			return 0
		}
	}
	if n == 0 {
		res.errf("%s: must be a positive integer", field)
		return 0
	}
	return n
}
