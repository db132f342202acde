package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/assessor/internal/catalog"
	"github.com/pavelanni/assessor/internal/feedback"
	"github.com/pavelanni/assessor/internal/handler"
	appI18n "github.com/pavelanni/assessor/internal/i18n"
	"github.com/pavelanni/assessor/internal/leaderboard"
	"github.com/pavelanni/assessor/internal/llm"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/pgstore"
	"github.com/pavelanni/assessor/internal/session"
	"github.com/pavelanni/assessor/internal/stats"
	"github.com/pavelanni/assessor/internal/store"
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assessor",
		Short: "Adaptive assessment and performance engine",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), summaryCmd(), leaderboardCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `assessor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStorageFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "assessor.db", "SQLite database path (content store, and events when --event-store=sqlite)")
	f.String("event-store", "sqlite", "Answer event store (sqlite, postgres)")
	f.String("database-url", "", "PostgreSQL DSN for --event-store=postgres")
	f.Float64("weak-threshold", 0.5, "Subject accuracy below this is a weak topic")
	f.Int("min-attempts", 3, "Attempts required before a subject can be a weak topic")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP assessment server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSliceP("questions", "q", nil, "Catalog files (JSON or YAML) to import on startup (repeatable)")
	f.Bool("sample", false, "Import the built-in sample catalog on startup")
	f.String("llm-url", "", "OpenAI-compatible API base URL for wrong-answer explanations (empty disables)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Duration("llm-timeout", 10*time.Second, "Timeout for one explanation request")
	f.StringP("lang", "l", "en", "Default feedback language (en, ru)")
	f.IntP("num-questions", "n", 0, "Questions per session (0 = whole question set)")
	f.Bool("shuffle", false, "Randomize question order within a difficulty tier")
	f.Duration("session-ttl", 2*time.Hour, "Idle sessions expire after this (0 disables)")
	f.Int("leaderboard-limit", 10, "Default number of leaderboard entries")
	f.Bool("admin", false, "Expose /api/admin routes")
	addStorageFlags(cmd)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import catalog files (JSON or YAML) into the content store",
		RunE:  runImport,
	}
	cmd.Flags().Bool("sample", false, "Import the built-in sample catalog")
	addStorageFlags(cmd)
	return cmd
}

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print a student's performance summary as JSON",
		RunE:  runSummary,
	}
	cmd.Flags().String("student", "", "Student identifier (required)")
	_ = cmd.MarkFlagRequired("student")
	addStorageFlags(cmd)
	return cmd
}

func leaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the leaderboard as JSON",
		RunE:  runLeaderboard,
	}
	cmd.Flags().Int("limit", 10, "Number of entries (0 = all)")
	addStorageFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the answer event log with recomputed summaries as JSON",
		RunE:  runExport,
	}
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	addStorageFlags(cmd)
	return cmd
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

	v.SetEnvPrefix("ASSESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("assessor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/assessor")
	v.AddConfigPath("/etc/assessor")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// eventLog is the durable answer event store.
type eventLog interface {
	AppendEvent(ctx context.Context, e model.AnswerEvent) (model.AnswerEvent, error)
	StudentEvents(ctx context.Context, studentID string) ([]model.AnswerEvent, error)
	AllEvents(ctx context.Context) ([]model.AnswerEvent, error)
	EventCount(ctx context.Context) (int, error)
}

// engine bundles the stores and read models shared by every command.
type engine struct {
	content *store.Store
	events  eventLog
	agg     *stats.Aggregator
	ranker  *leaderboard.Ranker
	closers []func() error
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

func openEngine(ctx context.Context, v *viper.Viper) (*engine, error) {
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	e := &engine{content: db, events: db, closers: []func() error{db.Close}}

	switch kind := strings.ToLower(v.GetString("event-store")); kind {
	case "", "sqlite":
	case "postgres":
		dsn := v.GetString("database-url")
		if dsn == "" {
			e.Close()
			return nil, fmt.Errorf("--database-url is required for the postgres event store")
		}
		pg, err := pgstore.New(ctx, dsn, pgstore.DefaultPoolConfig())
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("open postgres event store: %w", err)
		}
		e.events = pg
		e.closers = append(e.closers, pg.Close)
	default:
		e.Close()
		return nil, fmt.Errorf("unknown event store %q", kind)
	}
	slog.Debug("event store ready", "kind", v.GetString("event-store"))

	policy := stats.Policy{
		WeakThreshold: v.GetFloat64("weak-threshold"),
		MinAttempts:   v.GetInt("min-attempts"),
	}
	e.agg = stats.NewAggregator(e.events, db, policy)
	e.ranker = leaderboard.NewRanker(e.agg, db)
	return e, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := openEngine(ctx, v)
	if err != nil {
		return err
	}
	defer eng.Close()

	importer := catalog.NewImporter(eng.content)
	if v.GetBool("sample") {
		if _, err := importer.ImportSample(ctx); err != nil {
			return fmt.Errorf("import sample: %w", err)
		}
	}
	if err := importer.ImportFiles(ctx, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Explanations are optional; a missing endpoint only disables them.
	var explainer feedback.Explainer
	if url := v.GetString("llm-url"); url != "" {
		llmClient := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), lang)
		if err := llmClient.Ping(ctx); err != nil {
			slog.Warn("LLM health check failed, explanations disabled", "url", url, "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
			explainer = llmClient
		}
	}

	cfg := session.Config{
		NumQuestions: v.GetInt("num-questions"),
		Shuffle:      v.GetBool("shuffle"),
		TTL:          v.GetDuration("session-ttl"),
	}
	sessions := session.New(eng.content, eng.events, cfg,
		session.WithRefresher(eng.agg),
		session.WithSummaries(eng.agg),
		session.WithFeedback(feedback.New(explainer, v.GetDuration("llm-timeout"))),
	)

	h := handler.New(sessions, eng.agg, eng.ranker, eng.content, eng.events, importer, handler.Config{
		LeaderboardLimit: v.GetInt("leaderboard-limit"),
		Admin:            v.GetBool("admin"),
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"event_store", v.GetString("event-store"),
		"num_questions", cfg.NumQuestions,
		"shuffle", cfg.Shuffle,
		"weak_threshold", v.GetFloat64("weak-threshold"),
		"min_attempts", v.GetInt("min-attempts"),
		"session_ttl", cfg.TTL,
		"explanations", explainer != nil,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if !v.GetBool("sample") && len(args) == 0 {
		return fmt.Errorf("nothing to import: pass catalog files or --sample")
	}
	importer := catalog.NewImporter(db)
	if v.GetBool("sample") {
		if _, err := importer.ImportSample(ctx); err != nil {
			return fmt.Errorf("import sample: %w", err)
		}
	}
	if err := importer.ImportFiles(ctx, args); err != nil {
		return err
	}

	n, err := db.QuestionCount(ctx)
	if err != nil {
		return err
	}
	slog.Info("content store ready", "questions", n)
	return nil
}

func runSummary(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	eng, err := openEngine(ctx, v)
	if err != nil {
		return err
	}
	defer eng.Close()

	sum, err := eng.agg.Summarize(ctx, v.GetString("student"))
	if err != nil {
		return err
	}
	return writeJSONTo("-", sum)
}

func runLeaderboard(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	eng, err := openEngine(ctx, v)
	if err != nil {
		return err
	}
	defer eng.Close()

	entries, err := eng.ranker.Rank(ctx, v.GetInt("limit"))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	return writeJSONTo("-", entries)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	eng, err := openEngine(ctx, v)
	if err != nil {
		return err
	}
	defer eng.Close()

	export, err := buildExport(ctx, eng.events, eng.agg, eng.ranker, time.Now().UTC())
	if err != nil {
		return err
	}
	slog.Info("exporting events", "events", export.EventCount, "students", len(export.Summaries))
	return writeJSONTo(v.GetString("output"), export)
}
