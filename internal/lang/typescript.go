package lang

import (
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func init() {
	Languages["typescript"] = &Language{
		Name:       "typescript",
		Extensions: []string{".ts"},
		Frontend:   TreeSitter,
		lang:       typescript.GetLanguage(),
	}
	// TSX needs its own grammar: the plain TypeScript one rejects JSX.
	Languages["tsx"] = &Language{
		Name:       "tsx",
		Extensions: []string{".tsx"},
		Frontend:   TreeSitter,
		lang:       tsx.GetLanguage(),
	}
}
