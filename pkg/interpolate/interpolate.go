// Package interpolate resolves {name} placeholders in outgoing message text.
//
// A placeholder is a brace-delimited name made of letters, digits, '_', '.'
// and '-'. Placeholders with no matching variable are left verbatim and
// reported, never treated as errors: a broken reference must not abort a
// conversation. "{{" and "}}" render as literal braces.
package interpolate

import (
	"strings"
	"unicode"
)

// Render substitutes placeholders in text from vars.
// It returns the rendered text and the distinct unresolved names in order of appearance.
func Render(text string, vars map[string]string) (string, []string) {
	if !strings.ContainsAny(text, "{}") {
		return text, nil
	}

	var (
		b          strings.Builder
		unresolved []string
		seen       map[string]bool
	)
	b.Grow(len(text))

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '{' && i+1 < len(text) && text[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(text) && text[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				b.WriteString(text[i:])
				return b.String(), unresolved
			}
			name := text[i+1 : i+1+end]
			if !validName(name) {
				b.WriteByte('{')
				i++
				continue
			}
			if v, ok := vars[name]; ok {
				b.WriteString(v)
			} else {
				b.WriteString(text[i : i+end+2])
				if seen == nil {
					seen = make(map[string]bool)
				}
				if !seen[name] {
					seen[name] = true
					unresolved = append(unresolved, name)
				}
			}
			i += end + 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), unresolved
}

// Placeholders lists the distinct placeholder names referenced by text.
func Placeholders(text string) []string {
	_, names := Render(text, nil)
	return names
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' && r != '-' {
			return false
		}
	}
	return true
}
