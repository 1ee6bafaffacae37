package scripting

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// codeBlock matches <pre><code>..</code></pre> blocks and inline <code>..</code>.
var codeBlock = regexp.MustCompile(`(?s)<pre>\s*<code>(.*?)</code>\s*</pre>|<code>(.*?)</code>`)

type segment struct {
	text string
	code bool
}

// segments splits a text script into literal text and unescaped code, in
// source order. Empty literal runs are dropped.
func segments(script string) []segment {
	var out []segment
	last := 0
	for _, m := range codeBlock.FindAllStringSubmatchIndex(script, -1) {
		if m[0] > last {
			out = append(out, segment{text: script[last:m[0]]})
		}
		start, end := m[2], m[3]
		if start < 0 {
			start, end = m[4], m[5]
		}
		out = append(out, segment{text: unescapeCode(script[start:end]), code: true})
		last = m[1]
	}
	if last < len(script) {
		out = append(out, segment{text: script[last:]})
	}
	return out
}

// conditionBody returns the code of a condition script: its code blocks
// joined by newlines, or the whole script when it has none.
func conditionBody(script string) string {
	var code []string
	for _, seg := range segments(script) {
		if seg.code {
			code = append(code, seg.text)
		}
	}
	if len(code) == 0 {
		return unescapeCode(script)
	}
	return strings.Join(code, "\n")
}

// unescapeCode turns authored HTML into Lua source: <br> becomes a newline,
// inline formatting tags are dropped, and entities are decoded.
func unescapeCode(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	s = brTag.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, "")
	return html.UnescapeString(s)
}

var (
	brTag  = regexp.MustCompile(`(?i)<br\s*/?>`)
	anyTag = regexp.MustCompile(`(?i)</?(?:p|span|em|strong|b|i|u|div|code|pre)\b[^>]*>`)
)
