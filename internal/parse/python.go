package parse

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/phobologic/codegraph/internal/model"
)

var (
	pyDefRe        = regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`)
	pyImportRe     = regexp.MustCompile(`^\s*import\s+([A-Za-z_][\w.]*)`)
	pyFromImportRe = regexp.MustCompile(`^\s*from\s+([.A-Za-z_][\w.]*)\s+import\s+\(?\s*([A-Za-z_*][\w*,\s]*)`)
	pyCallRe       = regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\(`)
	newlineRe      = regexp.MustCompile(`\r\n?`)
)

type pyScope struct {
	name   string
	indent int
}

// ScanPython extracts facts from Python source without a grammar. Scope is
// tracked by indentation and only changes on def lines, so a call that
// follows a dedent is still attributed to the last open def.
func ScanPython(filePath string, source []byte) *model.FileFacts {
	c := newCollector(filePath, "python")
	text := newlineRe.ReplaceAllString(string(source), "\n")

	var stack []pyScope
	top := func() string {
		if len(stack) == 0 {
			return ""
		}
		return stack[len(stack)-1].name
	}

	for _, line := range strings.Split(text, "\n") {
		indent := len(line) - len(strings.TrimLeftFunc(line, unicode.IsSpace))

		if m := pyDefRe.FindStringSubmatch(line); m != nil {
			for len(stack) > 0 && indent <= stack[len(stack)-1].indent {
				stack = stack[:len(stack)-1]
			}
			c.declare(m[1], top())
			stack = append(stack, pyScope{name: m[1], indent: indent})
			continue
		}

		if m := pyImportRe.FindStringSubmatch(line); m != nil {
			c.importRef(m[1], model.PythonImport)
		} else if m := pyFromImportRe.FindStringSubmatch(line); m != nil {
			for _, specifier := range fromImportSpecifiers(m[1], m[2]) {
				c.importRef(specifier, model.PythonImport)
			}
		}

		caller := top()
		for _, loc := range pyCallRe.FindAllStringSubmatchIndex(line, -1) {
			if loc[0] > 0 && line[loc[0]-1] == '.' {
				continue
			}
			c.call(caller, line[loc[2]:loc[3]])
		}
	}
	return c.facts
}

// fromImportSpecifiers expands "from . import a, b" into ".a" and ".b" so
// sibling modules resolve. Any other from-import yields the module itself.
func fromImportSpecifiers(module, names string) []string {
	if strings.Trim(module, ".") != "" {
		return []string{module}
	}
	var specs []string
	for _, name := range strings.Split(names, ",") {
		fields := strings.Fields(name)
		if len(fields) == 0 || fields[0] == "*" {
			continue
		}
		specs = append(specs, module+fields[0])
	}
	if len(specs) == 0 {
		return []string{module}
	}
	return specs
}
