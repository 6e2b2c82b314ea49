package config

import "os"

// LoadFile parses the Busgatefile at path.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// normalizeInput prepares raw file bytes for parsing:
// - strips UTF-8 BOM
// - normalizes CRLF/CR to LF
func normalizeInput(in []byte) []byte {
	if len(in) >= 3 && in[0] == 0xEF && in[1] == 0xBB && in[2] == 0xBF {
		in = in[3:]
	}

	out := make([]byte, 0, len(in))
	for i := 0; i < len(in); i++ {
		b := in[i]
		if b == '\r' {
			if i+1 < len(in) && in[i+1] == '\n' {
				i++
			}
			out = append(out, '\n')
			continue
		}
		out = append(out, b)
	}
	return out
}

// canonicalize produces deterministic formatter output: LF endings, no BOM,
// exactly one trailing newline.
func canonicalize(in []byte) []byte {
	in = normalizeInput(in)

	out := in
	for len(out) > 0 {
		last := out[len(out)-1]
		if last == '\n' || last == ' ' || last == '\t' {
			out = out[:len(out)-1]
			continue
		}
		break
	}
	return append(out, '\n')
}
