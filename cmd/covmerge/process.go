package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/covmerge/covmerge/internal/archive"
	"github.com/covmerge/covmerge/internal/config"
	"github.com/covmerge/covmerge/internal/observability"
	"github.com/covmerge/covmerge/pkg/assemble"
	"github.com/covmerge/covmerge/pkg/gitls"
	"github.com/covmerge/covmerge/pkg/report"
	"github.com/covmerge/covmerge/pkg/useryaml"
)

const metricsReadHeaderTimeout = 5 * time.Second

// ProcessCommand holds configuration and dependencies for the process
// command.
type ProcessCommand struct {
	configPath string
	yamlPath   string
	commit     string
	repoPath   string
	flags      []string
	name       string
	provider   string
	build      string
	job        string
	url        string
	noColor    bool
	dryRun     bool
}

func processCmd() *cobra.Command {
	pc := &ProcessCommand{}

	cmd := &cobra.Command{
		Use:   "process <envelope|->",
		Short: "Merge a raw upload envelope into the report of a commit",
		Long: `Process reads a raw upload envelope, decodes every coverage file in it,
merges the result against the commit's previous report and persists the new
report to the archive.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pc.run(cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&pc.configPath, "config", "", "Service config file (default: .covmerge.yaml, env COVMERGE_*)")
	cmd.Flags().StringVar(&pc.yamlPath, "yaml", "", "Commit-level user YAML with flag and fix configuration")
	cmd.Flags().StringVarP(&pc.commit, "commit", "c", "", "Commit id the upload belongs to (required)")
	cmd.Flags().StringVar(&pc.repoPath, "repo", "", "Local git repository to list tracked files from, overriding the envelope ToC")
	cmd.Flags().StringSliceVarP(&pc.flags, "flag", "f", nil, "Upload flags (example: unit,integration)")
	cmd.Flags().StringVar(&pc.name, "name", "", "Upload name")
	cmd.Flags().StringVar(&pc.provider, "provider", "", "CI provider of the upload")
	cmd.Flags().StringVar(&pc.build, "build", "", "CI build identifier")
	cmd.Flags().StringVar(&pc.job, "job", "", "CI job identifier")
	cmd.Flags().StringVar(&pc.url, "url", "", "CI build URL")
	cmd.Flags().BoolVar(&pc.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&pc.dryRun, "dry-run", false, "Merge without persisting the result")

	_ = cmd.MarkFlagRequired("commit")

	return cmd
}

func (pc *ProcessCommand) run(cmd *cobra.Command, envelopePath string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if pc.noColor {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	cfg, err := config.Load(pc.configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	raw, err := readEnvelope(envelopePath, cmd.InOrStdin())
	if err != nil {
		return err
	}

	userCfg, err := pc.loadUserConfig(cfg)
	if err != nil {
		return err
	}

	metrics, err := pc.setupMetrics(cfg, logger)
	if err != nil {
		return err
	}

	toc, err := pc.loadTOC()
	if err != nil {
		return err
	}

	pipeline := &assemble.Pipeline{
		Config:  userCfg,
		Logger:  logger,
		Metrics: metrics,
		TOC:     toc,
	}

	store := archive.New(cfg.Archive.Root, cfg.Archive.Compress)

	previous, err := pc.loadPrevious(ctx, store)
	if err != nil {
		return err
	}

	result, err := pipeline.Process(ctx, previous, raw, assemble.UploadMeta{
		Flags:    pc.flags,
		Name:     pc.name,
		Provider: pc.provider,
		Build:    pc.build,
		Job:      pc.job,
		URL:      pc.url,
	})
	if err != nil {
		return fmt.Errorf("process upload for %s: %w", pc.commit, err)
	}

	if !pc.dryRun {
		digest, putErr := store.Put(ctx, pc.commit, result.Report)
		if putErr != nil {
			return fmt.Errorf("persist report for %s: %w", pc.commit, putErr)
		}

		logger.Info("report persisted", "commit", pc.commit, "digest", digest)
	}

	renderResult(cmd.OutOrStdout(), pc.commit, len(raw), result)

	return nil
}

func (pc *ProcessCommand) loadUserConfig(cfg *config.Config) (*useryaml.Config, error) {
	userCfg := &useryaml.Config{}

	if pc.yamlPath != "" {
		rawYAML, err := os.ReadFile(pc.yamlPath)
		if err != nil {
			return nil, fmt.Errorf("read user yaml: %w", err)
		}

		userCfg, err = useryaml.Parse(rawYAML)
		if err != nil {
			return nil, err
		}
	}

	// The service-level age limit applies when the commit yaml sets none.
	if !userCfg.Covmerge.MaxReportAge.Enabled() && cfg.MaxReportAge > 0 {
		userCfg.Covmerge.MaxReportAge.Duration = cfg.MaxReportAge
	}

	return userCfg, nil
}

func (pc *ProcessCommand) setupMetrics(cfg *config.Config, logger *slog.Logger) (*observability.EngineMetrics, error) {
	if !cfg.Metrics.Enabled {
		return nil, nil //nolint:nilnil // nil metrics disable recording
	}

	exporter, err := observability.NewExporter()
	if err != nil {
		return nil, err
	}

	metrics, err := exporter.Metrics()
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           exporter.Handler(),
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		serveErr := server.ListenAndServe()
		if serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("metrics endpoint failed", "addr", cfg.Metrics.Addr, "err", serveErr)
		}
	}()

	return metrics, nil
}

func (pc *ProcessCommand) loadTOC() ([]string, error) {
	if pc.repoPath == "" {
		return nil, nil
	}

	repo, err := gitls.Open(pc.repoPath)
	if err != nil {
		return nil, err
	}
	defer repo.Free()

	return repo.ListHead()
}

func (pc *ProcessCommand) loadPrevious(ctx context.Context, store *archive.Store) (*report.Report, error) {
	exists, err := store.Exists(ctx, pc.commit)
	if err != nil {
		return nil, fmt.Errorf("check archive for %s: %w", pc.commit, err)
	}

	if !exists {
		return nil, nil //nolint:nilnil // first upload of the commit
	}

	previous, err := store.Get(ctx, pc.commit)
	if err != nil {
		return nil, fmt.Errorf("load previous report for %s: %w", pc.commit, err)
	}

	return previous, nil
}

func readEnvelope(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read envelope from stdin: %w", err)
		}

		return raw, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}

	return raw, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func renderResult(w io.Writer, commit string, envelopeSize int, result *assemble.Result) {
	totals := result.Report.Totals()

	color.New(color.FgGreen).Fprintf(w, "merged upload into %s as session %d\n", commit, result.Session.ID)
	fmt.Fprintf(w, "  envelope: %s\n", humanize.Bytes(uint64(envelopeSize)))
	fmt.Fprintf(w, "  sessions: %d\n", totals.Sessions)

	if deleted := result.Adjustment.FullyDeleted; len(deleted) > 0 {
		color.New(color.FgYellow).Fprintf(w, "  carryforward sessions deleted: %v\n", deleted)
	}

	if modified := result.Adjustment.PartiallyModified; len(modified) > 0 {
		color.New(color.FgYellow).Fprintf(w, "  carryforward sessions adjusted: %v\n", modified)
	}

	if totals.Coverage != "" {
		fmt.Fprintf(w, "  coverage: %s%%\n", totals.Coverage)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, renderFileTable(result.Report))
}

func renderFileTable(r *report.Report) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.AppendHeader(table.Row{"file", "lines", "hits", "misses", "partials", "coverage"})

	r.EachFile(func(f *report.File) {
		t := report.FileTotals(f)
		coverage := t.Coverage
		if coverage != "" {
			coverage += "%"
		}

		tbl.AppendRow(table.Row{f.Name, t.Lines, t.Hits, t.Misses, t.Partials, coverage})
	})

	return tbl.Render()
}
