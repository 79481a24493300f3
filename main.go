// codegraph builds call and import graphs from archives of JavaScript,
// TypeScript, Vue and Python sources, and serves them over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/phobologic/codegraph/internal/analyze"
	"github.com/phobologic/codegraph/internal/archive"
	"github.com/phobologic/codegraph/internal/config"
	"github.com/phobologic/codegraph/internal/graph"
	"github.com/phobologic/codegraph/internal/model"
	"github.com/phobologic/codegraph/internal/ranking"
	"github.com/phobologic/codegraph/internal/server"
	"github.com/phobologic/codegraph/internal/toon"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "codegraph",
		Short:         "Call and import graphs for source archives",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("codegraph {{.Version}}\n")
	root.AddCommand(newServeCmd(), newAnalyzeCmd(), newInitCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		addr  string
		debug bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload and auth API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if debug {
				cfg.LogLevel = slog.LevelDebug
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}

			logger := newLogger(cfg, cmd.ErrOrStderr())
			slog.SetDefault(logger)

			shutdownTracing, err := setupTracing(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					logger.Warn("flushing traces failed", slog.String("error", err.Error()))
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(cfg, logger).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides CODEGRAPH_ADDR and PORT)")
	cmd.Flags().BoolVar(&debug, "debug", false, "debug logging and gin debug mode")
	return cmd
}

// newLogger logs JSON in production and text everywhere else.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.Production() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

type analyzeFlags struct {
	format    string
	top       int
	file      string
	cachePath string
}

func newAnalyzeCmd() *cobra.Command {
	var flags analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze <archive.zip|dir>",
		Short: "Print the graph of a zip archive or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), args[0], flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&flags.format, "format", "f", "toon", "output format: json or toon")
	cmd.Flags().IntVarP(&flags.top, "top", "n", 0, "keep only the N highest-ranked files")
	cmd.Flags().StringVar(&flags.file, "file", "", "keep files whose path contains this substring, plus their neighbors")
	cmd.Flags().StringVar(&flags.cachePath, "cache", "", "cache file for unfiltered directory output")
	return cmd
}

func runAnalyze(ctx context.Context, target string, flags analyzeFlags, stdout, stderr io.Writer) error {
	if flags.format != "json" && flags.format != "toon" {
		return fmt.Errorf("unknown format %q", flags.format)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	a := analyze.New(archive.Options{
		MaxArchiveBytes: cfg.Analyze.MaxUploadBytes,
		MaxFileBytes:    cfg.Analyze.MaxFileBytes,
		Extensions:      cfg.Analyze.Extensions,
		Exclude:         cfg.Analyze.Exclude,
	}, logger)

	abs, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("input path: %w", err)
	}

	name := filepath.Base(abs)
	useCache := flags.cachePath != "" && info.IsDir() && flags.top <= 0 && flags.file == ""

	var res *model.Result
	if info.IsDir() {
		entries, err := archive.FromDir(abs, a.Options())
		if err != nil {
			return fmt.Errorf("reading directory: %w", err)
		}
		if len(entries) == 0 {
			return fmt.Errorf("no parseable files found")
		}
		if useCache && cacheIsFresh(flags.cachePath, abs, entries) {
			if data, err := os.ReadFile(flags.cachePath); err == nil {
				_, _ = stdout.Write(data)
				return nil
			}
		}
		res, err = a.AnalyzeEntries(ctx, entries)
		if err != nil {
			return err
		}
	} else {
		data, err := os.ReadFile(abs)
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}
		name = strings.TrimSuffix(name, filepath.Ext(name))
		res, err = a.AnalyzeArchive(ctx, data)
		if err != nil {
			return err
		}
	}

	ranks := graph.Rank(res)
	if flags.top > 0 {
		res = ranking.SelectFiles(res, ranks, flags.top)
	}
	if flags.file != "" {
		res = ranking.FilterByFile(res, flags.file)
		if len(res.Elements.Nodes) == 0 {
			return fmt.Errorf("no files match %q", flags.file)
		}
	}

	var output string
	switch flags.format {
	case "json":
		buf, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding json: %w", err)
		}
		output = string(buf)
	default:
		output = toon.Encode(name, res, ranks)
	}

	if useCache {
		_ = os.WriteFile(flags.cachePath, []byte(output+"\n"), 0o644)
	}

	_, _ = fmt.Fprintln(stdout, output)
	return nil
}

// cacheIsFresh reports whether the cache file is newer than every entry.
func cacheIsFresh(cachePath, root string, entries []model.Entry) bool {
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return false
	}
	cacheMtime := cacheInfo.ModTime()

	for _, e := range entries {
		fi, err := os.Stat(filepath.Join(root, filepath.FromSlash(e.Path)))
		if err != nil {
			return false
		}
		if !fi.ModTime().Before(cacheMtime) {
			return false
		}
	}
	return true
}
