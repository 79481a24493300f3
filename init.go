package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/phobologic/codegraph/internal/archive"
)

const (
	sentinelStart = "# codegraph:start"
	sentinelEnd   = "# codegraph:end"
)

func newInitCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "init [path-to-.env]",
		Short: "Write a codegraph settings block to a .env file",
		Long: `Write a codegraph settings block to a .env file. The block is wrapped in
sentinel comments so it can be updated in place on subsequent runs without
touching surrounding variables. Creates the file if it does not exist.

path-to-.env defaults to ./.env.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args, dryRun, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")
	return cmd
}

// runInit writes (or updates) the settings block in the .env file named by
// args, or ./.env when args is empty.
func runInit(args []string, dryRun bool, stdout, stderr io.Writer) error {
	section := generateSection()

	// --dry-run with no path: just print the section itself.
	if dryRun && len(args) == 0 {
		_, _ = fmt.Fprintln(stdout, section)
		return nil
	}

	path := ".env"
	if len(args) > 0 {
		path = args[0]
	}

	existing, _ := os.ReadFile(path)
	updated := applySection(string(existing), section)
	if _, err := godotenv.Unmarshal(updated); err != nil {
		return fmt.Errorf("%s would not be a valid .env file: %w", path, err)
	}

	if dryRun {
		_, _ = fmt.Fprint(stdout, updated)
		return nil
	}

	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote codegraph settings to %s\n", path)
	return nil
}

// generateSection returns the sentinel-wrapped settings block. Optional
// settings are written commented out.
func generateSection() string {
	lines := []string{
		"# codegraph settings. Run `codegraph --help` for the commands that read them.",
		"APP_ENV=local",
		"LOG_LEVEL=info",
		"PORT=8080",
		"",
		"# Upload analysis",
		fmt.Sprintf("CODEGRAPH_MAX_UPLOAD_BYTES=%d", archive.DefaultMaxArchiveBytes),
		fmt.Sprintf("CODEGRAPH_MAX_FILE_BYTES=%d", archive.DefaultMaxFileBytes),
		"CODEGRAPH_ANALYZE_TIMEOUT=60s",
		"# CODEGRAPH_EXTENSIONS=" + strings.Join(archive.DefaultExtensions, ","),
		"# CODEGRAPH_EXCLUDE=" + strings.Join(archive.DefaultExclude, ","),
		"",
		"# Identity backend",
		"IDENTITY_BASE_URL=http://localhost:8000",
		"AUTH_MODE=jwt",
		"# IDENTITY_TOKEN_PATH=/api/token/",
		"# IDENTITY_REFRESH_PATH=/api/token/refresh/",
		"# IDENTITY_ME_PATH=/api/users/me/",
		"# IDENTITY_REGISTER_PATH=/api/auth/users/",
		"# IDENTITY_LOGOUT_PATH=/api/logout/",
		"# IDENTITY_TIMEOUT=10s",
		"",
		"# Tracing (none or stdout)",
		"# OTEL_TRACES_EXPORTER=stdout",
	}
	return sentinelStart + "\n" + strings.Join(lines, "\n") + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
