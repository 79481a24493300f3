package lang

import (
	"github.com/smacker/go-tree-sitter/typescript/tsx"
)

func init() {
	// Plain JavaScript is parsed with the TSX grammar. It is a superset that
	// also accepts JSX and the type annotations that show up in .js files
	// run through TypeScript-aware bundlers.
	Languages["javascript"] = &Language{
		Name:       "javascript",
		Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		Frontend:   TreeSitter,
		lang:       tsx.GetLanguage(),
	}
}
