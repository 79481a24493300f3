package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joho/godotenv"
)

// TestApplySectionCreate verifies that applySection on empty content wraps the
// section in sentinels with a trailing newline.
func TestApplySectionCreate(t *testing.T) {
	t.Parallel()
	section := sentinelStart + "\nbody\n" + sentinelEnd
	got := applySection("", section)
	if !strings.Contains(got, sentinelStart) {
		t.Error("missing sentinel start")
	}
	if !strings.Contains(got, sentinelEnd) {
		t.Error("missing sentinel end")
	}
	if !strings.Contains(got, "body") {
		t.Error("missing body")
	}
}

// TestApplySectionAppend verifies that existing content without a sentinel block
// is preserved and the section is appended.
func TestApplySectionAppend(t *testing.T) {
	t.Parallel()
	existing := "DATABASE_URL=postgres://localhost/app\nDEBUG=1\n"
	section := sentinelStart + "\nnew content\n" + sentinelEnd
	got := applySection(existing, section)

	if !strings.HasPrefix(got, existing) {
		t.Errorf("existing content should be preserved at start:\n%s", got)
	}
	if !strings.Contains(got, "new content") {
		t.Error("new content missing")
	}
}

// TestApplySectionUpdate verifies that an existing sentinel block is replaced
// precisely, leaving surrounding content intact.
func TestApplySectionUpdate(t *testing.T) {
	t.Parallel()
	before := "FOO=bar\n\n"
	after := "\n\nBAZ=qux\n"
	old := before + sentinelStart + "\nold content\n" + sentinelEnd + after

	section := sentinelStart + "\nnew content\n" + sentinelEnd
	got := applySection(old, section)

	if !strings.HasPrefix(got, before) {
		t.Errorf("content before sentinel should be preserved:\n%s", got)
	}
	if !strings.HasSuffix(got, after) {
		t.Errorf("content after sentinel should be preserved:\n%s", got)
	}
	if strings.Contains(got, "old content") {
		t.Error("old content should be replaced")
	}
	if !strings.Contains(got, "new content") {
		t.Error("new content missing")
	}
}

// TestInitCreatesFile verifies that runInit creates the target file when it
// does not exist.
func TestInitCreatesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")

	var stdout, stderr bytes.Buffer
	if err := runInit([]string{path}, false, &stdout, &stderr); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("file not created: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, sentinelStart) {
		t.Error("sentinel start missing from created file")
	}
	if !strings.Contains(content, sentinelEnd) {
		t.Error("sentinel end missing from created file")
	}
}

// TestInitDryRun verifies that --dry-run prints the full would-be file content
// to stdout and does not create or modify the target file.
func TestInitDryRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")

	var stdout, stderr bytes.Buffer
	if err := runInit([]string{path}, true, &stdout, &stderr); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	if _, err := os.Stat(path); err == nil {
		t.Error("--dry-run should not create the file")
	}
	out := stdout.String()
	if !strings.Contains(out, sentinelStart) {
		t.Error("dry-run output missing sentinel start")
	}
	if !strings.Contains(out, sentinelEnd) {
		t.Error("dry-run output missing sentinel end")
	}
}

// TestInitDryRunNoPath verifies that --dry-run without a path prints just the
// generated section to stdout without touching any file.
func TestInitDryRunNoPath(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := runInit(nil, true, &stdout, &stderr); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, sentinelStart) {
		t.Error("output missing sentinel start")
	}
	if !strings.Contains(out, sentinelEnd) {
		t.Error("output missing sentinel end")
	}
	// Just the section, without surrounding file content.
	if strings.HasPrefix(out, "\n") {
		t.Error("output should not have a leading newline when no file is given")
	}
}

// TestInitDryRunShowsFullFile verifies that --dry-run on an existing file
// shows the complete would-be file content, including surrounding text.
func TestInitDryRunShowsFullFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")

	existing := "SECRET_KEY=abc\n"
	if err := os.WriteFile(path, []byte(existing), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if err := runInit([]string{path}, true, &stdout, &stderr); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "SECRET_KEY=abc") {
		t.Error("dry-run output missing existing file content")
	}
	if !strings.Contains(out, sentinelStart) {
		t.Error("dry-run output missing sentinel start")
	}
	// File on disk should be unchanged.
	data, _ := os.ReadFile(path)
	if string(data) != existing {
		t.Error("--dry-run must not modify the file")
	}
}

// TestInitIdempotent verifies that running init twice produces identical output.
func TestInitIdempotent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")

	var buf bytes.Buffer
	if err := runInit([]string{path}, false, &buf, &buf); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := os.ReadFile(path)

	if err := runInit([]string{path}, false, &buf, &buf); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := os.ReadFile(path)

	if string(first) != string(second) {
		t.Errorf("init is not idempotent:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

// TestInitSectionContainsHelpRef verifies the generated section points to --help.
func TestInitSectionContainsHelpRef(t *testing.T) {
	t.Parallel()
	section := generateSection()
	if !strings.Contains(section, "--help") {
		t.Error("generated section should reference --help")
	}
}

// TestInitSectionParses verifies the generated section is a valid .env file
// whose active settings load with their defaults.
func TestInitSectionParses(t *testing.T) {
	t.Parallel()
	env, err := godotenv.Unmarshal(generateSection())
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	want := map[string]string{
		"APP_ENV":                    "local",
		"PORT":                       "8080",
		"CODEGRAPH_MAX_UPLOAD_BYTES": "41943040",
		"CODEGRAPH_ANALYZE_TIMEOUT":  "60s",
		"IDENTITY_BASE_URL":          "http://localhost:8000",
		"AUTH_MODE":                  "jwt",
	}
	for k, v := range want {
		if env[k] != v {
			t.Errorf("%s = %q, want %q", k, env[k], v)
		}
	}
	if _, ok := env["IDENTITY_TOKEN_PATH"]; ok {
		t.Error("optional settings should be commented out")
	}
}

// TestInitPreservesVariables verifies that variables around the block survive
// an update.
func TestInitPreservesVariables(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("SECRET_KEY=abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	for range 2 {
		if err := runInit([]string{path}, false, &buf, &buf); err != nil {
			t.Fatalf("runInit: %v", err)
		}
	}

	env, err := godotenv.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if env["SECRET_KEY"] != "abc" {
		t.Errorf("SECRET_KEY = %q, want abc", env["SECRET_KEY"])
	}
	if env["AUTH_MODE"] != "jwt" {
		t.Errorf("AUTH_MODE = %q, want jwt", env["AUTH_MODE"])
	}
	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), sentinelStart); n != 1 {
		t.Errorf("sentinel start appears %d times, want 1", n)
	}
}

// TestInitCommand verifies the init subcommand is reachable through run.
func TestInitCommand(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"init", "--dry-run"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), sentinelStart) {
		t.Errorf("unexpected output:\n%s", stdout.String())
	}
}

// TestInitDefaultPath verifies that an explicit path is written to.
func TestInitDefaultPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")

	// Pass the path explicitly since we can't change cwd in parallel tests.
	var stdout, stderr bytes.Buffer
	if err := runInit([]string{path}, false, &stdout, &stderr); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file at %s: %v", path, err)
	}
}
