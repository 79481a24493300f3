// Package graph assembles the file and function graph and ranks files with
// PageRank.
package graph

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/phobologic/codegraph/internal/model"
	"github.com/phobologic/codegraph/internal/resolve"
)

// Assemble builds the graph from the facts of every extracted file, in
// extraction order. eligible lists every archive path that passed the loader
// and is only used when no node could be produced.
func Assemble(units []*model.FileFacts, eligible []string) *model.Result {
	res := &model.Result{
		Elements: model.Elements{
			Nodes: []model.Node{},
			Edges: []model.Edge{},
		},
	}

	// Build declaration index: callee name → files declaring it, first seen first.
	declaredBy := make(map[string][]string)
	paths := make([]string, 0, len(units))
	for _, u := range units {
		paths = append(paths, u.Path)
		for _, d := range u.Declarations {
			if !contains(declaredBy[d.Name], u.Path) {
				declaredBy[d.Name] = append(declaredBy[d.Name], u.Path)
			}
		}
	}

	for _, u := range units {
		res.AddNode(model.FileNodeID(u.Path), u.Path, model.FileNode)
	}
	for _, u := range units {
		for _, d := range u.Declarations {
			fnID := model.FunctionNodeID(u.Path, d.Name)
			res.AddNode(fnID, d.Name+"()", model.FunctionNode)
			res.AddEdge("decl:"+u.Path+"#"+d.Name, model.FileNodeID(u.Path), fnID, model.DeclaresEdge)
			res.Summary.Functions++
		}
	}

	seq := 0
	nextID := func(prefix string) string {
		id := fmt.Sprintf("%s:%d", prefix, seq)
		seq++
		return id
	}

	for _, u := range units {
		for _, c := range u.Calls {
			owners := declaredBy[c.Callee]
			if len(owners) == 0 {
				continue
			}
			source := model.FileNodeID(u.Path)
			if c.Caller != "" {
				source = model.FunctionNodeID(u.Path, c.Caller)
			}
			for _, owner := range owners {
				res.AddEdge(nextID("call"), source, model.FunctionNodeID(owner, c.Callee), model.CallsEdge)
				res.Summary.CallEdges++
			}
		}
	}

	files := resolve.NewFileSet(paths)
	for _, style := range []model.ImportStyle{model.ScriptImport, model.PythonImport} {
		for _, u := range units {
			for _, ref := range u.Imports {
				if ref.Style != style {
					continue
				}
				target, ok := files.Resolve(ref)
				if !ok {
					continue
				}
				res.AddEdge(nextID("imp"), model.FileNodeID(u.Path), model.FileNodeID(target), model.ImportsEdge)
				res.Summary.ImportEdges++
			}
		}
	}

	if len(res.Elements.Nodes) == 0 {
		for _, p := range eligible {
			res.AddNode(model.FileNodeID(p), p, model.FileNode)
		}
	}

	for _, n := range res.Elements.Nodes {
		if n.Data.Kind == model.FileNode {
			res.Summary.Files++
		}
	}
	res.Summary.TotalEdges = len(res.Elements.Edges)
	return res
}

// FileLinks collapses call and import edges into file-to-file link counts.
// Self links are dropped.
func FileLinks(res *model.Result) map[string]map[string]int {
	links := make(map[string]map[string]int)
	for _, e := range res.Elements.Edges {
		if e.Data.Kind == model.DeclaresEdge {
			continue
		}
		src, tgt := NodeFile(e.Data.Source), NodeFile(e.Data.Target)
		if src == "" || tgt == "" || src == tgt {
			continue
		}
		if links[src] == nil {
			links[src] = make(map[string]int)
		}
		links[src][tgt]++
	}
	return links
}

// NodeFile returns the file a node ID belongs to.
func NodeFile(id string) string {
	switch {
	case strings.HasPrefix(id, "file:"):
		return strings.TrimPrefix(id, "file:")
	case strings.HasPrefix(id, "fn:"):
		rest := strings.TrimPrefix(id, "fn:")
		if i := strings.LastIndex(rest, "#"); i >= 0 {
			return rest[:i]
		}
	}
	return ""
}

// Rank applies PageRank to the file nodes of res. A file that calls into or
// imports another file passes rank to it, weighted by link count.
func Rank(res *model.Result) map[string]float64 {
	var nodes []string
	for _, n := range res.Elements.Nodes {
		if n.Data.Kind == model.FileNode {
			nodes = append(nodes, n.Data.Label)
		}
	}
	if len(nodes) == 0 {
		return map[string]float64{}
	}
	sort.Strings(nodes)

	links := FileLinks(res)
	if len(links) == 0 {
		uniform := 1.0 / float64(len(nodes))
		ranks := make(map[string]float64, len(nodes))
		for _, n := range nodes {
			ranks[n] = uniform
		}
		return ranks
	}

	// Edge from source to target means source references target.
	outEdges := make(map[string][]string) // node → targets, repeated per link
	outDegree := make(map[string]int)
	for _, src := range nodes {
		for _, tgt := range sortedKeys(links[src]) {
			for i := 0; i < links[src][tgt]; i++ {
				outEdges[src] = append(outEdges[src], tgt)
			}
			outDegree[src] += links[src][tgt]
		}
	}

	return pageRank(nodes, outEdges, outDegree, 0.85, 100, 1e-6)
}

// RankedFiles returns the ranked file paths ordered by rank descending, ties
// broken by path.
func RankedFiles(ranks map[string]float64) []string {
	files := make([]string, 0, len(ranks))
	for f := range ranks {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		if ranks[files[i]] != ranks[files[j]] {
			return ranks[files[i]] > ranks[files[j]]
		}
		return files[i] < files[j]
	})
	return files
}

func pageRank(
	nodes []string,
	outEdges map[string][]string,
	outDegree map[string]int,
	alpha float64,
	maxIter int,
	tol float64,
) map[string]float64 {
	n := len(nodes)
	rank := make(map[string]float64, n)
	initial := 1.0 / float64(n)
	for _, node := range nodes {
		rank[node] = initial
	}

	teleport := (1.0 - alpha) / float64(n)

	for iter := 0; iter < maxIter; iter++ {
		newRank := make(map[string]float64, n)

		// Dangling node contribution (nodes with no outgoing edges)
		var danglingSum float64
		for _, node := range nodes {
			if outDegree[node] == 0 {
				danglingSum += rank[node]
			}
		}
		danglingContrib := alpha * danglingSum / float64(n)

		for _, node := range nodes {
			newRank[node] = teleport + danglingContrib
		}

		// Distribute rank through edges
		for _, src := range nodes {
			targets := outEdges[src]
			if len(targets) == 0 {
				continue
			}
			contrib := alpha * rank[src] / float64(outDegree[src])
			for _, tgt := range targets {
				newRank[tgt] += contrib
			}
		}

		// Check convergence
		var diff float64
		for _, node := range nodes {
			diff += math.Abs(newRank[node] - rank[node])
		}

		rank = newRank

		if diff < tol {
			break
		}
	}

	return rank
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
