package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/aqs/internal/checkpoint"
	"github.com/pavelanni/aqs/internal/config"
	"github.com/pavelanni/aqs/internal/content"
	"github.com/pavelanni/aqs/internal/evaluator"
	"github.com/pavelanni/aqs/internal/handler"
	appI18n "github.com/pavelanni/aqs/internal/i18n"
	"github.com/pavelanni/aqs/internal/llm"
	"github.com/pavelanni/aqs/internal/llm/prompts"
	"github.com/pavelanni/aqs/internal/loader"
	"github.com/pavelanni/aqs/internal/metrics"
	"github.com/pavelanni/aqs/internal/store"
	"github.com/pavelanni/aqs/internal/summary"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "aqs",
		Short: "Assessment quality scoring for course exports",
	}
	root.AddCommand(listCmd(), evaluateCmd(), checkpointsCmd(), exportCmd(), serveCmd())
	return root
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List courses found in the data directory",
		RunE:  runList,
	}
	addCommonFlags(cmd.Flags())
	return cmd
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score course assessments with the analysis service",
		RunE:  runEvaluate,
	}
	f := cmd.Flags()
	addCommonFlags(f)
	addCheckpointFlags(f)
	addLLMFlags(f)
	f.StringSliceP("course", "c", nil, "Course IDs to evaluate (repeatable)")
	f.Bool("all", false, "Evaluate every course in the data directory")
	f.String("assessment", "", "Evaluate a single assessment directory without course content")
	f.Bool("force-restart", false, "Ignore and delete existing checkpoints")
	d := config.Default()
	f.Int("few-questions", d.FewQuestionsThreshold, "Question count below which results are flagged")
	f.Float64("mismatch-threshold", d.MismatchThreshold, "Difficulty appropriateness gap that triggers a warning")
	f.Int("module-limit", d.ModuleLimit, "Character budget for module content (0 = unlimited)")
	f.Int("transcript-limit", d.TranscriptLimit, "Character budget for course transcripts (0 = unlimited)")
	f.Int("pdf-limit", d.PDFLimit, "Character budget for course PDF text (0 = unlimited)")
	f.String("pricing-file", "", "YAML file with per-model token prices")
	f.String("prompts-dir", "", "Directory with prompt templates overriding the built-in ones")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address while evaluating")
	return cmd
}

func checkpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "List or clear evaluation checkpoints",
		RunE:  runCheckpoints,
	}
	f := cmd.Flags()
	addCommonFlags(f)
	addCheckpointFlags(f)
	f.StringSliceP("model", "m", nil, "Model names whose checkpoints to clear")
	f.StringSliceP("course", "c", nil, "Course IDs whose checkpoints to clear")
	f.Bool("clear", false, "Clear checkpoints for the given models and courses")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a cross-course summary of evaluated results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	addCommonFlags(f)
	f.StringSliceP("model", "m", nil, "Model whose results to summarize (default gemini-2.0-flash)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only results API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	addCommonFlags(f)
	addCheckpointFlags(f)
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	return cmd
}

func addCommonFlags(f *pflag.FlagSet) {
	d := config.Default()
	f.String("data-dir", d.DataDir, "Directory containing course exports (do_* folders)")
	f.String("output-dir", d.OutputDir, "Directory for evaluation results")
	f.StringP("lang", "l", d.Lang, "Message language (en, ru)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addCheckpointFlags(f *pflag.FlagSet) {
	f.String("checkpoint-backend", config.BackendFile, "Checkpoint storage (file, sqlite)")
	f.String("checkpoint-path", "", "Checkpoint directory (file) or database (sqlite); defaults under the output dir")
}

func addLLMFlags(f *pflag.FlagSet) {
	d := config.Default()
	f.StringSliceP("model", "m", nil, "Model names; every course is evaluated once per model (default gemini-2.0-flash)")
	f.String("llm-url", d.LLMURL, "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key (or set AQS_LLM_KEY / GEMINI_API_KEY)")
	f.Int("rpm", d.RequestsPerMinute, "Maximum analysis requests per minute per model (0 = unlimited)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("AQS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("aqs")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/aqs")
	v.AddConfigPath("/etc/aqs")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// prepare loads .env, sets up logging and i18n and resolves the config.
// The returned context carries the localizer.
func prepare(cmd *cobra.Command) (context.Context, config.Config, error) {
	config.LoadDotEnv()
	setupLogging(cmd)
	cfg, err := config.FromViper(viperForCmd(cmd))
	if err != nil {
		return nil, cfg, err
	}
	if err := appI18n.Init(cfg.Lang); err != nil {
		return nil, cfg, fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(cfg.Lang))
	return ctx, cfg, nil
}

// backend holds the opened checkpoint storage. runs is nil for the file backend.
type backend struct {
	checkpoints *checkpoint.Manager
	runs        *store.Store
}

func (b backend) Close() {
	if b.runs != nil {
		b.runs.Close()
	}
}

func openBackend(cfg config.Config) (backend, error) {
	if cfg.CheckpointBackend != config.BackendSQLite {
		return backend{checkpoints: checkpoint.NewManager(checkpoint.NewFileStore(cfg.CheckpointPath))}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.CheckpointPath), 0o755); err != nil {
		return backend{}, fmt.Errorf("create database dir: %w", err)
	}
	db, err := store.New(cfg.CheckpointPath)
	if err != nil {
		return backend{}, fmt.Errorf("open database: %w", err)
	}
	return backend{checkpoints: checkpoint.NewManager(db), runs: db}, nil
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx, cfg, err := prepare(cmd)
	if err != nil {
		return err
	}
	l := loader.New(cfg.DataDir, content.PDFToText{})
	ids, err := l.ListCourses()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COURSE\tNAME\tMODULES\tASSESSMENTS\tWARNINGS")
	for _, id := range ids {
		cd, err := l.Load(ctx, id)
		if err != nil {
			fmt.Fprintf(w, "%s\t(error: %v)\t\t\t\n", id, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", id, cd.Metadata.Name,
			len(cd.Content.ModuleNames), len(cd.Assessments), len(cd.Warnings))
	}
	return w.Flush()
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	ctx, cfg, err := prepare(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	v := viperForCmd(cmd)

	promptFS := prompts.Default()
	if cfg.PromptsDir != "" {
		promptFS = os.DirFS(cfg.PromptsDir)
	}
	if err := prompts.Load(promptFS); err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	pricing, err := metrics.LoadPricing(cfg.PricingFile)
	if err != nil {
		return err
	}

	be, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	reg := prometheus.NewRegistry()
	runner := &evaluator.Runner{
		Loader:      loader.New(cfg.DataDir, content.PDFToText{}),
		Checkpoints: be.checkpoints,
		OutputDir:   cfg.OutputDir,
		Collectors:  metrics.NewCollectors(reg),
	}
	if be.runs != nil {
		runner.Runs = be.runs
	}
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg)
	}

	var evs []*evaluator.Evaluator
	for _, m := range cfg.Models {
		client := llm.New(cfg.LLMURL, cfg.LLMKey, m, cfg.RequestsPerMinute)
		if err := client.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check for %s: %w", m, err)
		}
		slog.Info("LLM endpoint OK", "url", cfg.LLMURL, "model", m)
		evs = append(evs, evaluator.New(client, pricing, cfg.Evaluation()))
	}

	if dir := v.GetString("assessment"); dir != "" {
		for _, ev := range evs {
			res, err := runner.RunStandalone(ctx, ev, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%.2f\t%s\n", ev.Model(), res.AssessmentName, res.AQSScore, res.QualityTier)
		}
		return nil
	}

	courses, err := selectCourses(runner.Loader, v.GetStringSlice("course"), v.GetBool("all"))
	if err != nil {
		return err
	}
	opts := evaluator.RunOptions{ForceRestart: v.GetBool("force-restart")}
	slog.Info("starting evaluation", "courses", len(courses), "models", cfg.Models, "force_restart", opts.ForceRestart)

	outcomes := runner.RunAll(ctx, evs, courses, opts)
	failed := 0
	out := cmd.OutOrStdout()
	for _, o := range outcomes {
		if o.Err != nil && o.Results == nil {
			failed++
			fmt.Fprintf(out, "%s\t%s\tfailed: %v\n", o.ModelName, o.CourseID, o.Err)
			continue
		}
		cm := o.Results.Metrics
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\t$%.4f\n", o.ModelName, o.CourseID,
			appI18n.Tp(ctx, "AssessmentsEvaluated", cm.SuccessfulEvaluations),
			appI18n.Tp(ctx, "AssessmentsSkipped", cm.SkippedAssessments),
			cm.TotalCostUSD)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("evaluation interrupted: %w", ctx.Err())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d course runs failed", failed, len(outcomes))
	}
	return nil
}

func selectCourses(l *loader.Loader, courses []string, all bool) ([]string, error) {
	if all {
		ids, err := l.ListCourses()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("no courses found in %s", l.DataDir())
		}
		return ids, nil
	}
	var out []string
	for _, c := range courses {
		for _, id := range strings.Split(c, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.New("specify --course, --all or --assessment")
	}
	return out, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	slog.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("metrics listener stopped", "error", err)
	}
}

func runCheckpoints(cmd *cobra.Command, _ []string) error {
	_, cfg, err := prepare(cmd)
	if err != nil {
		return err
	}
	v := viperForCmd(cmd)
	be, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	list, err := be.checkpoints.List()
	if err != nil {
		return fmt.Errorf("list checkpoints: %w", err)
	}

	if v.GetBool("clear") {
		models := v.GetStringSlice("model")
		courses := v.GetStringSlice("course")
		cleared := 0
		for _, cp := range list {
			if matches(models, cp.ModelName) && matches(courses, cp.CourseID) {
				be.checkpoints.Clear(cp.ModelName, cp.CourseID)
				cleared++
			}
		}
		slog.Info("checkpoints cleared", "count", cleared)
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d checkpoint(s)\n", cleared)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tCOURSE\tNAME\tCOMPLETED\tSTATUS\tUPDATED")
	for _, cp := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n", cp.ModelName, cp.CourseID, cp.CourseName,
			cp.CompletedCount, cp.TotalAssessments, cp.Status, cp.LastUpdated.Format(time.DateTime))
	}
	return w.Flush()
}

// matches reports whether value is selected by filter; an empty filter
// selects everything.
func matches(filter []string, value string) bool {
	return len(filter) == 0 || slices.Contains(filter, value)
}

func runExport(cmd *cobra.Command, _ []string) error {
	_, cfg, err := prepare(cmd)
	if err != nil {
		return err
	}
	v := viperForCmd(cmd)

	exp, err := summary.Build(cfg.OutputDir, cfg.Models[0], time.Now())
	if err != nil {
		return err
	}
	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := summary.Write(w, exp); err != nil {
		return err
	}
	slog.Info("exported summary", "model", exp.ModelName, "courses", len(exp.Courses),
		"assessments", exp.Overall.TotalAssessments, "failed", exp.Overall.FailedAnalyses)
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	_, cfg, err := prepare(cmd)
	if err != nil {
		return err
	}
	v := viperForCmd(cmd)
	be, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	deps := handler.Deps{
		Loader:      loader.New(cfg.DataDir, content.PDFToText{}),
		Checkpoints: be.checkpoints,
		OutputDir:   cfg.OutputDir,
		Gatherer:    reg,
	}
	if be.runs != nil {
		deps.Runs = be.runs
	}
	h := handler.New(deps)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(cfg.Lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"data_dir", cfg.DataDir,
		"output_dir", cfg.OutputDir,
		"checkpoint_backend", cfg.CheckpointBackend,
		"lang", cfg.Lang,
	)
	return http.ListenAndServe(addr, r)
}
