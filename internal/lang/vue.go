package lang

import (
	"regexp"
	"strings"
)

func init() {
	Languages["vue"] = &Language{
		Name:       "vue",
		Extensions: []string{".vue"},
		Frontend:   Template,
	}
}

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script([^>]*)>(.*?)</script>`)
	scriptLangRe  = regexp.MustCompile(`(?i)\blang\s*=\s*["']?([a-z]+)`)
)

// ExtractScript returns the body of the first <script>...</script> block in a
// single-file component and the language that should parse it. The body is
// nil when there is no block or it holds only whitespace.
func ExtractScript(src []byte) ([]byte, *Language) {
	m := scriptBlockRe.FindSubmatchIndex(src)
	if m == nil {
		return nil, nil
	}
	body := src[m[4]:m[5]]
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}

	name := "javascript"
	if lm := scriptLangRe.FindSubmatch(src[m[2]:m[3]]); lm != nil {
		switch strings.ToLower(string(lm[1])) {
		case "ts":
			name = "typescript"
		case "tsx":
			name = "tsx"
		}
	}
	return body, Languages[name]
}
