// Package archive loads candidate source files from an uploaded zip archive
// or a directory tree.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/codegraph/internal/lang"
	"github.com/phobologic/codegraph/internal/model"
)

const (
	DefaultMaxArchiveBytes = 40 << 20 // 40 MiB
	DefaultMaxFileBytes    = 5 << 20  // 5 MiB
)

// DefaultExtensions lists the source extensions accepted by default: every
// extension a registered language handles.
var DefaultExtensions = lang.Extensions()

// DefaultExclude holds gitignore-style patterns for directories that never
// contain first-party sources.
var DefaultExclude = []string{"node_modules/", "__pycache__/"}

// ErrPayloadTooLarge is returned before any parsing when the archive exceeds
// the configured maximum.
var ErrPayloadTooLarge = errors.New("archive exceeds size limit")

// ParseError reports an archive that could not be read.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "reading archive: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Options controls which entries are loaded.
type Options struct {
	MaxArchiveBytes int64    // 0 means DefaultMaxArchiveBytes
	MaxFileBytes    int64    // 0 means DefaultMaxFileBytes
	Extensions      []string // nil means DefaultExtensions
	Exclude         []string // gitignore lines; nil means DefaultExclude
	Logger          *slog.Logger
}

// Filter decides whether a sanitized path is an eligible source file.
type Filter struct {
	include glob.Glob
	exclude *ignore.GitIgnore
}

// NewFilter compiles the include and exclude rules of opts.
func NewFilter(opts Options) (*Filter, error) {
	exts := opts.Extensions
	if exts == nil {
		exts = DefaultExtensions
	}
	alts := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		alts = append(alts, glob.QuoteMeta(ext))
	}
	if len(alts) == 0 {
		return nil, fmt.Errorf("no source extensions configured")
	}
	include, err := glob.Compile("**{"+strings.Join(alts, ",")+"}", '/')
	if err != nil {
		return nil, fmt.Errorf("compiling extension pattern: %w", err)
	}

	exclude := opts.Exclude
	if exclude == nil {
		exclude = DefaultExclude
	}
	return &Filter{
		include: include,
		exclude: ignore.CompileIgnoreLines(exclude...),
	}, nil
}

// Match reports whether the sanitized path p should be analyzed.
func (f *Filter) Match(p string) bool {
	lower := strings.ToLower(p)
	if f.exclude.MatchesPath(lower) {
		return false
	}
	return f.include.Match(lower)
}

// SanitizeName normalizes an archive member name: back-slashes become
// forward slashes, leading slashes are stripped, and empty, "." and ".."
// segments are dropped.
func SanitizeName(name string) string {
	raw := strings.TrimLeft(strings.ReplaceAll(name, `\`, "/"), "/")
	parts := strings.Split(raw, "/")
	safe := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		safe = append(safe, part)
	}
	return strings.Join(safe, "/")
}

// Load reads the eligible entries of a zip archive in archive order.
func Load(data []byte, opts Options) ([]model.Entry, error) {
	maxBytes := opts.MaxArchiveBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxArchiveBytes
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(data), maxBytes)
	}

	filter, err := NewFilter(opts)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		// Insecure names are fine here: every name goes through SanitizeName.
		return nil, &ParseError{Err: err}
	}

	logger := loggerOf(opts)
	maxFile := maxFileBytes(opts)
	seen := make(map[string]struct{})
	var entries []model.Entry

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		name := SanitizeName(f.Name)
		if name == "" || !filter.Match(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		if f.UncompressedSize64 > uint64(maxFile) {
			logger.Warn("skipping oversized archive entry",
				slog.String("file", name),
				slog.Uint64("bytes", f.UncompressedSize64),
				slog.Int64("limit", maxFile))
			continue
		}
		content, err := readEntry(f, maxFile)
		if err != nil {
			return nil, &ParseError{Err: fmt.Errorf("%s: %w", name, err)}
		}
		seen[name] = struct{}{}
		entries = append(entries, model.Entry{Path: name, Data: content})
	}

	return entries, nil
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// The header size is attacker controlled; cap the actual read too.
	content, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > limit {
		return nil, fmt.Errorf("entry expands past %d bytes", limit)
	}
	return content, nil
}

var skipDirs = map[string]struct{}{
	".git":          {},
	".hg":           {},
	".svn":          {},
	"venv":          {},
	".venv":         {},
	"build":         {},
	"dist":          {},
	".tox":          {},
	".mypy_cache":   {},
	".pytest_cache": {},
}

// FromDir loads the eligible files under root, sorted by path. Hidden
// directories and paths matched by root's .gitignore are skipped.
func FromDir(root string, opts Options) ([]model.Entry, error) {
	filter, err := NewFilter(opts)
	if err != nil {
		return nil, err
	}
	gi, _ := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))

	logger := loggerOf(opts)
	maxFile := maxFileBytes(opts)
	var entries []model.Entry

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		if !filter.Match(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxFile {
			logger.Warn("skipping oversized file",
				slog.String("file", rel),
				slog.Int64("bytes", info.Size()),
				slog.Int64("limit", maxFile))
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		entries = append(entries, model.Entry{Path: rel, Data: content})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

// Paths returns the paths of entries in order.
func Paths(entries []model.Entry) []string {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths
}

func maxFileBytes(opts Options) int64 {
	if opts.MaxFileBytes > 0 {
		return opts.MaxFileBytes
	}
	return DefaultMaxFileBytes
}

func loggerOf(opts Options) *slog.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return slog.Default()
}
