// Package model defines core data structures for codegraph.
package model

// Entry is a sanitized archive member: a forward-slash relative path with no
// "." or ".." segments, plus its raw bytes.
type Entry struct {
	Path string
	Data []byte
}

// ImportStyle selects the resolution rules for an import specifier.
type ImportStyle string

const (
	ScriptImport ImportStyle = "script" // import/require in JS/TS
	PythonImport ImportStyle = "python" // import / from-import
)

// Declaration is a named function or method found in a source file.
// Enclosing is the name of the declaration it is nested in, or "".
type Declaration struct {
	Name      string
	File      string
	Enclosing string
}

// CallSite is a call whose callee is a plain identifier.
// Caller is "" when the call happens at module scope.
type CallSite struct {
	File   string
	Caller string
	Callee string
}

// ImportRef is an unresolved module reference.
type ImportRef struct {
	File      string
	Specifier string
	Style     ImportStyle
}

// FileFacts holds everything collected from one source unit.
// Declarations are unique by name within a file. Partial is set when the
// syntax tree had errors and the facts come from the parts that parsed.
type FileFacts struct {
	Path         string
	Language     string
	Declarations []Declaration
	Calls        []CallSite
	Imports      []ImportRef
	Partial      bool
}

// NodeKind distinguishes file nodes from function nodes.
type NodeKind string

const (
	FileNode     NodeKind = "file"
	FunctionNode NodeKind = "fn"
)

// EdgeKind is the relation an edge represents.
type EdgeKind string

const (
	DeclaresEdge EdgeKind = "decl"
	CallsEdge    EdgeKind = "calls"
	ImportsEdge  EdgeKind = "imports"
)

// NodeData is the payload of a graph node on the wire.
type NodeData struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Kind  NodeKind `json:"kind"`
}

// Node wraps NodeData the way the graph widget expects it.
type Node struct {
	Data NodeData `json:"data"`
}

// EdgeData is the payload of a graph edge on the wire.
type EdgeData struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Kind   EdgeKind `json:"kind"`
}

// Edge wraps EdgeData the way the graph widget expects it.
type Edge struct {
	Data EdgeData `json:"data"`
}

// Elements is the node/edge payload of a Result.
type Elements struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Summary holds aggregate counts for a Result.
type Summary struct {
	Files       int `json:"files"`
	Functions   int `json:"functions"`
	CallEdges   int `json:"callEdges"`
	ImportEdges int `json:"importEdges"`
	TotalEdges  int `json:"totalEdges"`
}

// Result is the complete analyzed graph, ready for serialization.
type Result struct {
	Elements Elements `json:"elements"`
	Summary  Summary  `json:"summary"`
}

// FileNodeID returns the node id of a file.
func FileNodeID(path string) string {
	return "file:" + path
}

// FunctionNodeID returns the node id of a function declared in path.
func FunctionNodeID(path, name string) string {
	return "fn:" + path + "#" + name
}

// AddNode appends a node to r.
func (r *Result) AddNode(id, label string, kind NodeKind) {
	r.Elements.Nodes = append(r.Elements.Nodes, Node{Data: NodeData{ID: id, Label: label, Kind: kind}})
}

// AddEdge appends an edge to r.
func (r *Result) AddEdge(id, source, target string, kind EdgeKind) {
	r.Elements.Edges = append(r.Elements.Edges, Edge{Data: EdgeData{ID: id, Source: source, Target: target, Kind: kind}})
}
