// Package ranking narrows an analyzed graph to the files that matter most.
package ranking

import (
	"strings"

	"github.com/phobologic/codegraph/internal/graph"
	"github.com/phobologic/codegraph/internal/model"
)

// SelectFiles returns a new Result with only the maxFiles highest-ranked
// files, their functions, and the edges between them.
// If maxFiles is <= 0 or >= the number of files, res is returned unchanged.
func SelectFiles(res *model.Result, ranks map[string]float64, maxFiles int) *model.Result {
	if maxFiles <= 0 || maxFiles >= len(ranks) {
		return res
	}

	selected := make(map[string]struct{}, maxFiles)
	for _, f := range graph.RankedFiles(ranks)[:maxFiles] {
		selected[f] = struct{}{}
	}

	keep := func(id string) bool {
		_, ok := selected[graph.NodeFile(id)]
		return ok
	}
	return subgraph(res, keep, func(e model.EdgeData) bool {
		return keep(e.Source) && keep(e.Target)
	})
}

// FilterByFile returns a new Result containing the files whose path contains
// substr (case-insensitive) and every edge touching them. Nodes at the far
// end of a kept edge are kept too.
func FilterByFile(res *model.Result, substr string) *model.Result {
	lower := strings.ToLower(substr)
	matched := func(id string) bool {
		return strings.Contains(strings.ToLower(graph.NodeFile(id)), lower)
	}

	endpoints := make(map[string]struct{})
	for _, e := range res.Elements.Edges {
		if matched(e.Data.Source) || matched(e.Data.Target) {
			endpoints[e.Data.Source] = struct{}{}
			endpoints[e.Data.Target] = struct{}{}
			// A function is never shown without its file.
			endpoints[model.FileNodeID(graph.NodeFile(e.Data.Source))] = struct{}{}
			endpoints[model.FileNodeID(graph.NodeFile(e.Data.Target))] = struct{}{}
		}
	}

	keep := func(id string) bool {
		if matched(id) {
			return true
		}
		_, ok := endpoints[id]
		return ok
	}
	return subgraph(res, keep, func(e model.EdgeData) bool {
		return matched(e.Source) || matched(e.Target)
	})
}

// subgraph copies the nodes and edges of res accepted by the predicates and
// recomputes the summary.
func subgraph(res *model.Result, keepNode func(string) bool, keepEdge func(model.EdgeData) bool) *model.Result {
	out := &model.Result{
		Elements: model.Elements{
			Nodes: []model.Node{},
			Edges: []model.Edge{},
		},
	}
	for _, n := range res.Elements.Nodes {
		if !keepNode(n.Data.ID) {
			continue
		}
		out.Elements.Nodes = append(out.Elements.Nodes, n)
		switch n.Data.Kind {
		case model.FileNode:
			out.Summary.Files++
		case model.FunctionNode:
			out.Summary.Functions++
		}
	}
	for _, e := range res.Elements.Edges {
		if !keepEdge(e.Data) {
			continue
		}
		out.Elements.Edges = append(out.Elements.Edges, e)
		switch e.Data.Kind {
		case model.CallsEdge:
			out.Summary.CallEdges++
		case model.ImportsEdge:
			out.Summary.ImportEdges++
		}
	}
	out.Summary.TotalEdges = len(out.Elements.Edges)
	return out
}
