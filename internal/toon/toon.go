// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/codegraph/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts an analyzed graph into TOON format. ranks may be nil, in
// which case the rank column is omitted.
func Encode(name string, res *model.Result, ranks map[string]float64) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("archive: %s", encodeValue(name)))
	parts = append(parts, formatObject("summary", []string{"files", "functions", "callEdges", "importEdges", "totalEdges"}, []int{
		res.Summary.Files,
		res.Summary.Functions,
		res.Summary.CallEdges,
		res.Summary.ImportEdges,
		res.Summary.TotalEdges,
	}))

	var fileRows, fnRows [][]string
	for _, n := range res.Elements.Nodes {
		switch n.Data.Kind {
		case model.FileNode:
			row := []string{n.Data.Label}
			if ranks != nil {
				row = append(row, fmt.Sprintf("%.4f", ranks[n.Data.Label]))
			}
			fileRows = append(fileRows, row)
		case model.FunctionNode:
			file, fn := splitFunctionID(n.Data.ID)
			fnRows = append(fnRows, []string{file, fn})
		}
	}
	fileColumns := []string{"path"}
	if ranks != nil {
		fileColumns = append(fileColumns, "rank")
	}
	parts = append(parts, formatTabular("files", fileColumns, fileRows))
	parts = append(parts, formatTabular("functions", []string{"file", "name"}, fnRows))

	var edgeRows [][]string
	for _, e := range res.Elements.Edges {
		if e.Data.Kind == model.DeclaresEdge {
			continue
		}
		edgeRows = append(edgeRows, []string{
			string(e.Data.Kind),
			describe(e.Data.Source),
			describe(e.Data.Target),
		})
	}
	parts = append(parts, formatTabular("edges", []string{"kind", "source", "target"}, edgeRows))

	return strings.Join(parts, "\n")
}

// describe renders a node id as "path" or "path#name".
func describe(id string) string {
	if file, fn := splitFunctionID(id); fn != "" {
		return file + "#" + fn
	}
	return strings.TrimPrefix(id, "file:")
}

func splitFunctionID(id string) (file, name string) {
	rest, ok := strings.CutPrefix(id, "fn:")
	if !ok {
		return "", ""
	}
	i := strings.LastIndex(rest, "#")
	if i < 0 {
		return rest, ""
	}
	return rest[:i], rest[i+1:]
}

func formatObject(name string, keys []string, values []int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:", name)
	for i, k := range keys {
		fmt.Fprintf(&b, "\n  %s: %d", k, values[i])
	}
	return b.String()
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
