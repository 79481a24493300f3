// Package resolve maps import specifiers to files present in an analyzed
// archive.
package resolve

import (
	"path"
	"sort"
	"strings"

	"github.com/phobologic/codegraph/internal/model"
)

var (
	scriptExtensions = []string{".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs"}
	scriptIndexFiles = []string{"/index.js", "/index.ts", "/index.tsx"}
)

// FileSet is the set of files imports may resolve to.
type FileSet struct {
	files  map[string]struct{}
	sorted []string
}

// NewFileSet creates a FileSet from slash-separated paths.
func NewFileSet(paths []string) *FileSet {
	fs := &FileSet{files: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		if _, dup := fs.files[p]; dup {
			continue
		}
		fs.files[p] = struct{}{}
		fs.sorted = append(fs.sorted, p)
	}
	sort.Strings(fs.sorted)
	return fs
}

// Has reports whether p is in the set.
func (fs *FileSet) Has(p string) bool {
	_, ok := fs.files[p]
	return ok
}

// Resolve dispatches on the reference's import style. It returns the target
// path and false when the reference points outside the set.
func (fs *FileSet) Resolve(ref model.ImportRef) (string, bool) {
	switch ref.Style {
	case model.PythonImport:
		return fs.Python(ref.File, ref.Specifier)
	default:
		return fs.Script(ref.File, ref.Specifier)
	}
}

// Script resolves a JavaScript or TypeScript module specifier imported from
// the file from. Bare specifiers are looked up as archive paths; most of them
// name npm packages and stay unresolved.
func (fs *FileSet) Script(from, specifier string) (string, bool) {
	if specifier == "" || strings.HasPrefix(specifier, "http") {
		return "", false
	}
	candidate := specifier
	if strings.HasPrefix(specifier, ".") {
		candidate = path.Join(path.Dir(from), specifier)
	}

	if fs.Has(candidate) {
		return candidate, true
	}
	for _, ext := range scriptExtensions {
		if fs.Has(candidate + ext) {
			return candidate + ext, true
		}
	}
	for _, index := range scriptIndexFiles {
		if fs.Has(candidate + index) {
			return candidate + index, true
		}
	}
	return "", false
}

// Python resolves a dotted module imported from the file from. A specifier
// with n leading dots is relative to the importing package ascended n-1
// levels, as in Python itself.
func (fs *FileSet) Python(from, specifier string) (string, bool) {
	if specifier == "" {
		return "", false
	}

	rest := strings.TrimLeft(specifier, ".")
	dots := len(specifier) - len(rest)
	var base string
	if dots > 0 {
		base = path.Dir(from)
		for i := 1; i < dots; i++ {
			base = path.Dir(base)
		}
		if rest != "" {
			base = path.Join(base, strings.ReplaceAll(rest, ".", "/"))
		}
	} else {
		base = strings.ReplaceAll(rest, ".", "/")
	}

	// The archive root has a single package file; a suffix match would pick
	// some unrelated nested package.
	if base == "." || base == "" {
		if fs.Has("__init__.py") {
			return "__init__.py", true
		}
		return "", false
	}

	candidates := []string{base + ".py", base + "/__init__.py"}
	for _, c := range candidates {
		if fs.Has(c) {
			return c, true
		}
	}
	for _, c := range candidates {
		if match, ok := fs.suffixMatch(c); ok {
			return match, true
		}
	}
	return "", false
}

// suffixMatch returns the first file, in path order, that ends with suffix
// on a path-segment boundary.
func (fs *FileSet) suffixMatch(suffix string) (string, bool) {
	for _, f := range fs.sorted {
		if f == suffix || strings.HasSuffix(f, "/"+suffix) {
			return f, true
		}
	}
	return "", false
}
