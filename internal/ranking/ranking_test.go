package ranking

import (
	"testing"

	"github.com/phobologic/codegraph/internal/model"
)

func makeResult() *model.Result {
	res := &model.Result{}
	for _, f := range []string{"a.py", "b.py", "c.py"} {
		res.AddNode(model.FileNodeID(f), f, model.FileNode)
	}
	res.AddNode("fn:a.py#main", "main()", model.FunctionNode)
	res.AddNode("fn:b.py#foo", "foo()", model.FunctionNode)
	res.AddNode("fn:c.py#bar", "bar()", model.FunctionNode)
	res.AddEdge("decl:a.py#main", "file:a.py", "fn:a.py#main", model.DeclaresEdge)
	res.AddEdge("decl:b.py#foo", "file:b.py", "fn:b.py#foo", model.DeclaresEdge)
	res.AddEdge("decl:c.py#bar", "file:c.py", "fn:c.py#bar", model.DeclaresEdge)
	res.AddEdge("call:0", "fn:a.py#main", "fn:b.py#foo", model.CallsEdge)
	res.AddEdge("call:1", "fn:b.py#foo", "fn:c.py#bar", model.CallsEdge)
	res.AddEdge("imp:2", "file:a.py", "file:c.py", model.ImportsEdge)
	return res
}

func makeRanks() map[string]float64 {
	return map[string]float64{"a.py": 0.2, "b.py": 0.3, "c.py": 0.5}
}

func TestSelectFilesAll(t *testing.T) {
	t.Parallel()

	res := makeResult()
	ranks := makeRanks()
	for _, n := range []int{0, 3, 5} {
		if got := SelectFiles(res, ranks, n); got != res {
			t.Errorf("maxFiles=%d should return original", n)
		}
	}
}

func TestSelectFilesSubset(t *testing.T) {
	t.Parallel()

	got := SelectFiles(makeResult(), makeRanks(), 2)

	want := model.Summary{Files: 2, Functions: 2, CallEdges: 1, ImportEdges: 0, TotalEdges: 3}
	if got.Summary != want {
		t.Errorf("summary = %+v, want %+v", got.Summary, want)
	}
	for _, n := range got.Elements.Nodes {
		if n.Data.ID == "file:a.py" || n.Data.ID == "fn:a.py#main" {
			t.Errorf("lowest ranked file leaked: %s", n.Data.ID)
		}
	}
	for _, e := range got.Elements.Edges {
		if e.Data.ID == "call:0" || e.Data.ID == "imp:2" {
			t.Errorf("edge %s touches an unselected file", e.Data.ID)
		}
	}
}

func TestFilterByFile(t *testing.T) {
	t.Parallel()

	got := FilterByFile(makeResult(), "A.PY")

	ids := make(map[string]bool)
	for _, n := range got.Elements.Nodes {
		ids[n.Data.ID] = true
	}
	for _, id := range []string{"file:a.py", "fn:a.py#main", "file:b.py", "fn:b.py#foo", "file:c.py"} {
		if !ids[id] {
			t.Errorf("missing node %s", id)
		}
	}
	if ids["fn:c.py#bar"] {
		t.Error("fn:c.py#bar is not connected to a.py and should be dropped")
	}

	want := model.Summary{Files: 3, Functions: 2, CallEdges: 1, ImportEdges: 1, TotalEdges: 3}
	if got.Summary != want {
		t.Errorf("summary = %+v, want %+v", got.Summary, want)
	}
}

func TestFilterByFileNoMatch(t *testing.T) {
	t.Parallel()

	got := FilterByFile(makeResult(), "zzz")
	if len(got.Elements.Nodes) != 0 || len(got.Elements.Edges) != 0 {
		t.Errorf("expected empty result, got %+v", got.Elements)
	}
	if got.Elements.Nodes == nil || got.Elements.Edges == nil {
		t.Error("empty result should serialize as [] not null")
	}
}
