package parse

import (
	"bytes"
	"context"
	"fmt"
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/codegraph/internal/lang"
	"github.com/phobologic/codegraph/internal/model"
)

// nodeKind is the closed set of syntax nodes the walker cares about.
type nodeKind int

const (
	otherNode nodeKind = iota
	functionDeclNode
	functionExprNode
	arrowFunctionNode
	methodNode
	variableDeclaratorNode
	callNode
	importNode
	errorNode
)

// Grammar versions disagree on "function" vs "function_expression"; both are listed.
var nodeKinds = map[string]nodeKind{
	"function_declaration":           functionDeclNode,
	"generator_function_declaration": functionDeclNode,
	"function":                       functionExprNode,
	"function_expression":            functionExprNode,
	"generator_function":             functionExprNode,
	"arrow_function":                 arrowFunctionNode,
	"method_definition":              methodNode,
	"variable_declarator":            variableDeclaratorNode,
	"call_expression":                callNode,
	"import_statement":               importNode,
	"ERROR":                          errorNode,
}

func classify(n *sitter.Node) nodeKind {
	return nodeKinds[n.Type()]
}

// scope is the name of the innermost enclosing function. It is "" at module
// scope and inside anonymous functions.
type scope string

type scriptWalker struct {
	source []byte
	c      *collector
}

// importAttrRe matches the attribute clause of a static import or re-export,
// as in `from './data.json' assert { type: 'json' }`. Group 1 is the clause.
var importAttrRe = regexp.MustCompile(`(?:\bfrom|\bimport)\s*(?:"[^"\n]*"|'[^'\n]*')\s*((?:assert|with)\s*\{[^}]*\})`)

// blankImportAttributes overwrites import attribute clauses with spaces. The
// grammars predate the syntax, and byte offsets must survive for NodeText.
func blankImportAttributes(source []byte) []byte {
	locs := importAttrRe.FindAllSubmatchIndex(source, -1)
	if locs == nil {
		return source
	}
	out := bytes.Clone(source)
	for _, loc := range locs {
		for i := loc[2]; i < loc[3]; i++ {
			if out[i] != '\n' && out[i] != '\r' {
				out[i] = ' '
			}
		}
	}
	return out
}

// extractScript walks the syntax tree of a script. Trees with errors are
// still walked: whatever parsed is kept and the facts are marked Partial.
// ErrSyntax is returned only when nothing could be recovered.
func (x *Extractor) extractScript(ctx context.Context, l *lang.Language, language, filePath string, source []byte) (*model.FileFacts, error) {
	source = blankImportAttributes(source)
	tree, err := x.parser(l).ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.Type() == "ERROR" {
		return nil, fmt.Errorf("%s: %w", filePath, ErrSyntax)
	}

	w := &scriptWalker{source: source, c: newCollector(filePath, language)}
	w.walk(root, "")
	if root.HasError() {
		if w.c.empty() {
			return nil, fmt.Errorf("%s: %w", filePath, ErrSyntax)
		}
		w.c.facts.Partial = true
	}
	return w.c.facts, nil
}

func (w *scriptWalker) walk(n *sitter.Node, sc scope) {
	switch classify(n) {
	case functionDeclNode:
		name := w.identifierField(n, "name")
		w.c.declare(name, string(sc))
		w.walkChildren(n, scope(name))

	case functionExprNode, arrowFunctionNode:
		name := w.boundName(n)
		w.c.declare(name, string(sc))
		w.walkChildren(n, scope(name))

	case methodNode:
		name := w.methodName(n)
		w.c.declare(name, string(sc))
		w.walkChildren(n, scope(name))

	case variableDeclaratorNode:
		if value := n.ChildByFieldName("value"); value != nil && isFunction(value) {
			w.c.declare(w.identifierField(n, "name"), string(sc))
		}
		w.walkChildren(n, sc)

	case callNode:
		w.recordCall(n, sc)
		w.walkChildren(n, sc)

	case importNode:
		if src := n.ChildByFieldName("source"); src != nil && src.Type() == "string" {
			w.c.importRef(w.stringValue(src), model.ScriptImport)
		}

	case errorNode:
		w.recoverImport(n)
		w.walkChildren(n, sc)

	case otherNode:
		w.walkChildren(n, sc)
	}
}

// recoverImport picks up an import whose statement did not parse. Inside an
// ERROR node the keyword and the source string survive as loose children.
func (w *scriptWalker) recoverImport(n *sitter.Node) {
	pending := false
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "import":
			pending = true
		case "string":
			if pending {
				w.c.importRef(w.stringValue(child), model.ScriptImport)
			}
			pending = false
		}
	}
}

func (w *scriptWalker) walkChildren(n *sitter.Node, sc scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), sc)
	}
}

func (w *scriptWalker) recordCall(n *sitter.Node, sc scope) {
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" {
		return
	}
	callee := lang.NodeText(fn, w.source)
	w.c.call(string(sc), callee)

	if callee != "require" {
		return
	}
	args := n.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return
	}
	if first := args.NamedChild(0); first.Type() == "string" {
		w.c.importRef(w.stringValue(first), model.ScriptImport)
	}
}

// boundName returns the name a function expression is bound to: the variable
// it initializes or the class field it is assigned to.
func (w *scriptWalker) boundName(n *sitter.Node) string {
	parent := n.Parent()
	if parent == nil {
		return ""
	}
	switch parent.Type() {
	case "variable_declarator":
		return w.identifierField(parent, "name")
	case "field_definition":
		return w.propertyField(parent, "property")
	case "public_field_definition":
		return w.propertyField(parent, "name")
	}
	return ""
}

// methodName returns the name of a class method. Object-literal methods stay
// anonymous.
func (w *scriptWalker) methodName(n *sitter.Node) string {
	parent := n.Parent()
	if parent == nil || parent.Type() != "class_body" {
		return ""
	}
	return w.propertyField(n, "name")
}

func (w *scriptWalker) identifierField(n *sitter.Node, field string) string {
	child := n.ChildByFieldName(field)
	if child == nil || child.Type() != "identifier" {
		return ""
	}
	return lang.NodeText(child, w.source)
}

func (w *scriptWalker) propertyField(n *sitter.Node, field string) string {
	child := n.ChildByFieldName(field)
	if child == nil || child.Type() != "property_identifier" {
		return ""
	}
	return lang.NodeText(child, w.source)
}

func (w *scriptWalker) stringValue(n *sitter.Node) string {
	text := lang.NodeText(n, w.source)
	if len(text) >= 2 {
		return text[1 : len(text)-1]
	}
	return ""
}

func isFunction(n *sitter.Node) bool {
	switch classify(n) {
	case functionExprNode, arrowFunctionNode:
		return true
	}
	return false
}
