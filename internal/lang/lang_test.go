package lang

import (
	"testing"
)

func TestForExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ext  string
		want string
	}{
		{".py", "python"},
		{".js", "javascript"},
		{".JSX", "javascript"},
		{".mjs", "javascript"},
		{".cjs", "javascript"},
		{".ts", "typescript"},
		{".tsx", "tsx"},
		{".vue", "vue"},
		{".go", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			t.Parallel()
			got := ForExtension(tt.ext)
			if got != tt.want {
				t.Errorf("ForExtension(%q) = %q, want %q", tt.ext, got, tt.want)
			}
		})
	}
}

func TestForPath(t *testing.T) {
	t.Parallel()

	if l := ForPath("src/components/App.tsx"); l == nil || l.Name != "tsx" {
		t.Errorf("ForPath(App.tsx) = %+v, want tsx", l)
	}
	if l := ForPath("README.md"); l != nil {
		t.Errorf("ForPath(README.md) = %q, want nil", l.Name)
	}
}

func TestTreeSitterLanguagesHaveGrammar(t *testing.T) {
	t.Parallel()

	for name, l := range Languages {
		if l.Frontend != TreeSitter {
			if l.GetLanguage() != nil {
				t.Errorf("%s: unexpected grammar for non tree-sitter front end", name)
			}
			continue
		}
		if l.GetLanguage() == nil {
			t.Errorf("%s: grammar is nil", name)
		}
		if l.NewParser() == nil {
			t.Errorf("%s: NewParser returned nil", name)
		}
	}
}

func TestExtensions(t *testing.T) {
	t.Parallel()

	want := []string{".cjs", ".js", ".jsx", ".mjs", ".py", ".ts", ".tsx", ".vue"}
	got := Extensions()
	if len(got) != len(want) {
		t.Fatalf("Extensions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Extensions()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractScript(t *testing.T) {
	t.Parallel()

	src := "<template><div/></template>\n<SCRIPT>\nfunction hello() {}\n</Script>\n<script>second()</script>"
	body, l := ExtractScript([]byte(src))
	if l == nil || l.Name != "javascript" {
		t.Fatalf("language = %+v, want javascript", l)
	}
	if string(body) != "\nfunction hello() {}\n" {
		t.Errorf("body = %q", body)
	}
}

func TestExtractScriptLangAttribute(t *testing.T) {
	t.Parallel()

	_, l := ExtractScript([]byte(`<script setup lang="ts">const x: number = 1</script>`))
	if l == nil || l.Name != "typescript" {
		t.Errorf("lang=ts: got %+v, want typescript", l)
	}

	_, l = ExtractScript([]byte(`<script lang='tsx'>const x = <a/></script>`))
	if l == nil || l.Name != "tsx" {
		t.Errorf("lang=tsx: got %+v, want tsx", l)
	}
}

func TestExtractScriptMissingOrEmpty(t *testing.T) {
	t.Parallel()

	for _, src := range []string{
		"<template><div/></template>",
		"<template/><script>   \n  </script>",
		"<script>unterminated",
	} {
		body, l := ExtractScript([]byte(src))
		if body != nil || l != nil {
			t.Errorf("ExtractScript(%q) = %q, %+v; want nil", src, body, l)
		}
	}
}
