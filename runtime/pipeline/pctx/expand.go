package pctx

import "strings"

// Expand substitutes every `$name` occurrence in s with the rendered string
// form of context key "name". A missing key leaves the placeholder literal
// (spec §6: "a missing key leaves the placeholder literal"). `$` is
// recognized as introducing a name when followed by a letter or underscore;
// the name then runs over letters, digits, underscores and dots. Any other
// `$` is passed through unchanged.
func Expand(s string, ctx *Context) string {
	if !strings.ContainsRune(s, '$') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		c := s[i]
		if c != '$' || i+1 >= len(s) || !isNameStart(s[i+1]) {
			b.WriteByte(c)
			i++
			continue
		}
		j := i + 1
		for j < len(s) && isNameChar(s[j]) {
			j++
		}
		name := s[i+1 : j]
		if v, ok := ctx.Get(name); ok {
			b.WriteString(v.Render())
		} else {
			b.WriteString(s[i:j])
		}
		i = j
	}
	return b.String()
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9') || c == '.'
}
