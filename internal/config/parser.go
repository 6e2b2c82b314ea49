package config

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokLBrace
	tokRBrace
	tokComment
)

type token struct {
	kind tokenKind
	text string
	pos  position
}

type position struct {
	line int
	col  int
}

func (p position) String() string {
	return fmt.Sprintf("%d:%d", p.line, p.col)
}

type lexer struct {
	src  string
	i    int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) nextToken() (token, error) {
	for {
		if l.i >= len(l.src) {
			return token{kind: tokEOF, pos: position{line: l.line, col: l.col}}, nil
		}

		r, size := utf8.DecodeRuneInString(l.src[l.i:])
		if r == utf8.RuneError && size == 1 {
			return token{}, fmt.Errorf("invalid utf-8 at %d:%d", l.line, l.col)
		}

		if isSpace(r) {
			l.consumeRune(r, size)
			continue
		}

		pos := position{line: l.line, col: l.col}
		switch r {
		case '{':
			if text, ok := l.readPlaceholder(); ok {
				return token{kind: tokIdent, text: text, pos: pos}, nil
			}
			l.consumeRune(r, size)
			return token{kind: tokLBrace, text: "{", pos: pos}, nil
		case '}':
			l.consumeRune(r, size)
			return token{kind: tokRBrace, text: "}", pos: pos}, nil
		case '#':
			start := l.i
			for l.i < len(l.src) {
				r2, size2 := utf8.DecodeRuneInString(l.src[l.i:])
				if r2 == '\n' {
					break
				}
				l.consumeRune(r2, size2)
			}
			return token{kind: tokComment, text: l.src[start:l.i], pos: pos}, nil
		case '"':
			s, err := l.readString()
			if err != nil {
				return token{}, err
			}
			return token{kind: tokString, text: s, pos: pos}, nil
		default:
			return token{kind: tokIdent, text: l.readIdent(), pos: pos}, nil
		}
	}
}

// readPlaceholder recognizes {$NAME} and {env.NAME} so a placeholder at the
// start of an argument is not mistaken for a block open.
func (l *lexer) readPlaceholder() (string, bool) {
	rest := l.src[l.i:]
	if !strings.HasPrefix(rest, "{$") && !strings.HasPrefix(rest, "{env.") {
		return "", false
	}
	end := strings.IndexAny(rest, " \t\n\r")
	scope := rest
	if end != -1 {
		scope = rest[:end]
	}
	close := strings.IndexByte(scope, '}')
	if close == -1 {
		return "", false
	}
	text := scope[:close+1]
	for consumed := 0; consumed < len(text); {
		r, size := utf8.DecodeRuneInString(l.src[l.i:])
		l.consumeRune(r, size)
		consumed += size
	}
	return text, true
}

func (l *lexer) readIdent() string {
	start := l.i
	for l.i < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.i:])
		if isSpace(r) || r == '{' || r == '}' || r == '"' || r == '#' {
			break
		}
		l.consumeRune(r, size)
	}
	return l.src[start:l.i]
}

func (l *lexer) readString() (string, error) {
	r, size := utf8.DecodeRuneInString(l.src[l.i:])
	l.consumeRune(r, size)

	var out []rune
	for {
		if l.i >= len(l.src) {
			return "", fmt.Errorf("unterminated string at %d:%d", l.line, l.col)
		}
		r, size := utf8.DecodeRuneInString(l.src[l.i:])
		if r == '\n' {
			return "", fmt.Errorf("unterminated string at %d:%d", l.line, l.col)
		}
		if r == '"' {
			l.consumeRune(r, size)
			return string(out), nil
		}
		if r == '\\' {
			l.consumeRune(r, size)
			if l.i >= len(l.src) {
				return "", fmt.Errorf("unterminated escape at %d:%d", l.line, l.col)
			}
			er, esize := utf8.DecodeRuneInString(l.src[l.i:])
			l.consumeRune(er, esize)
			switch er {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			default:
				out = append(out, er)
			}
			continue
		}
		l.consumeRune(r, size)
		out = append(out, r)
	}
}

func (l *lexer) consumeRune(r rune, size int) {
	l.i += size
	if r == '\n' {
		l.line++
		l.col = 1
		return
	}
	l.col++
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}

type parser struct {
	tokens []token
	i      int
}

// Parse reads a Busgatefile. Input is normalized first (BOM stripped, line
// endings folded to LF).
func Parse(src []byte) (*Config, error) {
	normalized := string(normalizeInput(src))

	lex := newLexer(normalized)
	var tokens []token
	for {
		tok, err := lex.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == tokEOF {
			break
		}
	}

	p := &parser{tokens: tokens}
	cfg := &Config{}

	// Leading comments form the preserved preamble.
	for p.peek().kind == tokComment {
		cfg.Preamble = append(cfg.Preamble, p.next().text)
	}

	for {
		tok := p.next()
		switch tok.kind {
		case tokEOF:
			return cfg, nil
		case tokComment:
			continue
		case tokIdent:
			if err := p.parseDirective(cfg, tok); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%s: unexpected %q", tok.pos, tok.text)
		}
	}
}

func (p *parser) peek() token { return p.tokens[p.i] }

func (p *parser) next() token {
	tok := p.tokens[p.i]
	if tok.kind != tokEOF {
		p.i++
	}
	return tok
}

// nextArg skips comments and returns the next value token.
func (p *parser) nextArg() token {
	for {
		tok := p.next()
		if tok.kind == tokComment {
			continue
		}
		return tok
	}
}

func (p *parser) parseDirective(cfg *Config, tok token) error {
	switch tok.text {
	case "listen":
		arg := p.nextArg()
		if arg.kind != tokIdent && arg.kind != tokString {
			return fmt.Errorf("%s: listen requires an address", tok.pos)
		}
		cfg.Listen = arg.text
		cfg.ListenQuoted = arg.kind == tokString
		return nil
	case "auth":
		if cfg.Auth != nil {
			return fmt.Errorf("%s: duplicate auth block", tok.pos)
		}
		cfg.Auth = &AuthBlock{}
		return p.parseBlock(tok, func(name token) error {
			if name.text != "token" {
				return fmt.Errorf("%s: unknown auth directive %q", name.pos, name.text)
			}
			arg := p.nextArg()
			if arg.kind != tokIdent && arg.kind != tokString {
				return fmt.Errorf("%s: token requires a value", name.pos)
			}
			cfg.Auth.Tokens = append(cfg.Auth.Tokens, arg.text)
			cfg.Auth.TokensQuoted = append(cfg.Auth.TokensQuoted, arg.kind == tokString)
			return nil
		})
	case "peek":
		if cfg.Peek != nil {
			return fmt.Errorf("%s: duplicate peek block", tok.pos)
		}
		cfg.Peek = &PeekBlock{}
		return p.parseBlock(tok, func(name token) error {
			arg := p.nextArg()
			if arg.kind != tokIdent && arg.kind != tokString {
				return fmt.Errorf("%s: %s requires a value", name.pos, name.text)
			}
			switch name.text {
			case "default_count":
				cfg.Peek.DefaultCount = arg.text
				cfg.Peek.DefaultCountSet = true
			case "max_count":
				cfg.Peek.MaxCount = arg.text
				cfg.Peek.MaxCountSet = true
			default:
				return fmt.Errorf("%s: unknown peek directive %q", name.pos, name.text)
			}
			return nil
		})
	case "store":
		if cfg.Store != nil {
			return fmt.Errorf("%s: duplicate store block", tok.pos)
		}
		cfg.Store = &StoreBlock{Driver: DefaultStoreDriver}
		return p.parseBlock(tok, func(name token) error {
			arg := p.nextArg()
			if arg.kind != tokIdent && arg.kind != tokString {
				return fmt.Errorf("%s: %s requires a value", name.pos, name.text)
			}
			switch name.text {
			case "driver":
				cfg.Store.Driver = arg.text
			case "path":
				cfg.Store.Path = arg.text
				cfg.Store.PathQuoted = arg.kind == tokString
			case "dsn":
				cfg.Store.DSN = arg.text
				cfg.Store.DSNQuoted = arg.kind == tokString
			default:
				return fmt.Errorf("%s: unknown store directive %q", name.pos, name.text)
			}
			return nil
		})
	case "observability":
		if cfg.Observability != nil {
			return fmt.Errorf("%s: duplicate observability block", tok.pos)
		}
		cfg.Observability = &ObservabilityBlock{}
		return p.parseBlock(tok, func(name token) error {
			switch name.text {
			case "log":
				format := p.nextArg()
				if format.kind != tokIdent {
					return fmt.Errorf("%s: log requires a format", name.pos)
				}
				cfg.Observability.LogFormat = format.text
				if p.peek().kind == tokIdent {
					cfg.Observability.LogLevel = p.next().text
				}
			case "otlp_endpoint":
				arg := p.nextArg()
				if arg.kind != tokIdent && arg.kind != tokString {
					return fmt.Errorf("%s: otlp_endpoint requires a value", name.pos)
				}
				cfg.Observability.OTLPEndpoint = arg.text
				cfg.Observability.OTLPEndpointSet = true
			default:
				return fmt.Errorf("%s: unknown observability directive %q", name.pos, name.text)
			}
			return nil
		})
	default:
		return fmt.Errorf("%s: unknown directive %q", tok.pos, tok.text)
	}
}

func (p *parser) parseBlock(open token, directive func(name token) error) error {
	brace := p.nextArg()
	if brace.kind != tokLBrace {
		return fmt.Errorf("%s: %s requires a block", open.pos, open.text)
	}
	for {
		tok := p.next()
		switch tok.kind {
		case tokRBrace:
			return nil
		case tokComment:
			continue
		case tokIdent:
			if err := directive(tok); err != nil {
				return err
			}
		case tokEOF:
			return fmt.Errorf("%s: unclosed %s block", open.pos, open.text)
		default:
			return fmt.Errorf("%s: unexpected %q in %s block", tok.pos, tok.text, open.text)
		}
	}
}

// Format renders the configuration in canonical form: tab indentation, one
// directive per line, preamble preserved.
func Format(cfg *Config) []byte {
	var b strings.Builder
	for _, line := range cfg.Preamble {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if len(cfg.Preamble) > 0 {
		b.WriteByte('\n')
	}

	if cfg.Listen != "" {
		b.WriteString("listen ")
		b.WriteString(formatValue(cfg.Listen, cfg.ListenQuoted))
		b.WriteByte('\n')
	}

	openBlock := func(name string) {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(name + " {\n")
	}

	if cfg.Auth != nil {
		openBlock("auth")
		for i, tok := range cfg.Auth.Tokens {
			quoted := i < len(cfg.Auth.TokensQuoted) && cfg.Auth.TokensQuoted[i]
			fmt.Fprintf(&b, "\ttoken %s\n", formatValue(tok, quoted))
		}
		b.WriteString("}\n")
	}

	if cfg.Peek != nil {
		openBlock("peek")
		if cfg.Peek.DefaultCountSet {
			fmt.Fprintf(&b, "\tdefault_count %s\n", cfg.Peek.DefaultCount)
		}
		if cfg.Peek.MaxCountSet {
			fmt.Fprintf(&b, "\tmax_count %s\n", cfg.Peek.MaxCount)
		}
		b.WriteString("}\n")
	}

	if cfg.Store != nil {
		openBlock("store")
		fmt.Fprintf(&b, "\tdriver %s\n", cfg.Store.Driver)
		if cfg.Store.Path != "" {
			fmt.Fprintf(&b, "\tpath %s\n", formatValue(cfg.Store.Path, cfg.Store.PathQuoted))
		}
		if cfg.Store.DSN != "" {
			fmt.Fprintf(&b, "\tdsn %s\n", formatValue(cfg.Store.DSN, cfg.Store.DSNQuoted))
		}
		b.WriteString("}\n")
	}

	if cfg.Observability != nil {
		openBlock("observability")
		if cfg.Observability.LogFormat != "" {
			b.WriteString("\tlog " + cfg.Observability.LogFormat)
			if cfg.Observability.LogLevel != "" {
				b.WriteString(" " + cfg.Observability.LogLevel)
			}
			b.WriteByte('\n')
		}
		if cfg.Observability.OTLPEndpointSet {
			fmt.Fprintf(&b, "\totlp_endpoint %s\n", cfg.Observability.OTLPEndpoint)
		}
		b.WriteString("}\n")
	}

	return canonicalize([]byte(b.String()))
}

func formatValue(v string, quoted bool) string {
	if strings.HasPrefix(v, "{env.") || strings.HasPrefix(v, "{$") {
		return v
	}
	if quoted || strings.ContainsAny(v, " \t\"#{}") {
		escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
		return `"` + escaped + `"`
	}
	return v
}
