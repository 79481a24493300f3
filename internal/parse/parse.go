// Package parse extracts declarations, call sites and import references from
// source files.
package parse

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/codegraph/internal/lang"
	"github.com/phobologic/codegraph/internal/model"
)

var (
	// ErrSyntax reports a file whose syntax tree has errors and yields no facts.
	ErrSyntax = errors.New("syntax error")
	// ErrNoScript reports a template file without a usable script block.
	ErrNoScript = errors.New("no script block")
	// ErrUnsupported reports a file no front end handles.
	ErrUnsupported = errors.New("unsupported file type")
)

// Extractor turns source files into FileFacts. It keeps one tree-sitter
// parser per language and is not safe for concurrent use.
type Extractor struct {
	parsers map[string]*sitter.Parser
}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{parsers: make(map[string]*sitter.Parser)}
}

// Extract collects the facts of one file. filePath is the sanitized archive
// path and selects the front end by extension.
func (x *Extractor) Extract(ctx context.Context, filePath string, source []byte) (*model.FileFacts, error) {
	l := lang.ForPath(filePath)
	if l == nil {
		return nil, fmt.Errorf("%s: %w", filePath, ErrUnsupported)
	}
	language := l.Name

	if l.Frontend == lang.Template {
		body, inner := lang.ExtractScript(source)
		if body == nil {
			return nil, fmt.Errorf("%s: %w", filePath, ErrNoScript)
		}
		l, source = inner, body
	}

	switch l.Frontend {
	case lang.LineScanner:
		return ScanPython(filePath, source), nil
	case lang.TreeSitter:
		return x.extractScript(ctx, l, language, filePath, source)
	default:
		return nil, fmt.Errorf("%s: %w", filePath, ErrUnsupported)
	}
}

func (x *Extractor) parser(l *lang.Language) *sitter.Parser {
	p, ok := x.parsers[l.Name]
	if !ok {
		p = l.NewParser()
		x.parsers[l.Name] = p
	}
	return p
}

// collector accumulates the facts of a single file. Declarations have set
// semantics: the first declaration of a name wins.
type collector struct {
	facts    *model.FileFacts
	declared map[string]struct{}
}

func newCollector(filePath, language string) *collector {
	return &collector{
		facts:    &model.FileFacts{Path: filePath, Language: language},
		declared: make(map[string]struct{}),
	}
}

func (c *collector) empty() bool {
	return len(c.facts.Declarations) == 0 && len(c.facts.Calls) == 0 && len(c.facts.Imports) == 0
}

func (c *collector) declare(name, enclosing string) {
	if name == "" {
		return
	}
	if _, dup := c.declared[name]; dup {
		return
	}
	c.declared[name] = struct{}{}
	c.facts.Declarations = append(c.facts.Declarations, model.Declaration{
		Name:      name,
		File:      c.facts.Path,
		Enclosing: enclosing,
	})
}

func (c *collector) call(caller, callee string) {
	c.facts.Calls = append(c.facts.Calls, model.CallSite{
		File:   c.facts.Path,
		Caller: caller,
		Callee: callee,
	})
}

func (c *collector) importRef(specifier string, style model.ImportStyle) {
	if specifier == "" {
		return
	}
	c.facts.Imports = append(c.facts.Imports, model.ImportRef{
		File:      c.facts.Path,
		Specifier: specifier,
		Style:     style,
	})
}
