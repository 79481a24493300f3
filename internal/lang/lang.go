// Package lang provides a language registry mapping file extensions to the
// front end that extracts facts from them.
package lang

import (
	"path"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Frontend identifies how a language's source text is turned into facts.
type Frontend int

const (
	// TreeSitter sources are parsed into a syntax tree.
	TreeSitter Frontend = iota
	// LineScanner sources are scanned line by line without a grammar.
	LineScanner
	// Template sources carry an embedded script block that is lifted out
	// and handed to another language.
	Template
)

// Language holds front-end configuration for a supported language.
type Language struct {
	Name       string
	Extensions []string
	Frontend   Frontend
	lang       *sitter.Language
}

// GetLanguage returns the tree-sitter Language pointer, or nil for
// languages that are not parsed with tree-sitter.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Parsers are not safe for concurrent use.
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
// The lookup is case-insensitive.
func ForExtension(ext string) string {
	return getExtensionMap()[strings.ToLower(ext)]
}

// ForPath returns the language for a slash-separated path, or nil.
func ForPath(p string) *Language {
	name := ForExtension(path.Ext(p))
	if name == "" {
		return nil
	}
	return Languages[name]
}

// Extensions returns every registered extension, sorted.
func Extensions() []string {
	m := getExtensionMap()
	exts := make([]string, 0, len(m))
	for ext := range m {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}
