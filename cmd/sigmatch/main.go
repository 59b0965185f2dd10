package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/sigmatch"
	"github.com/fwojciec/sigmatch/sqlite"
	"github.com/fwojciec/sigmatch/yaml"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Getenv reads environment overrides. Defaults to os.Getenv.
	Getenv func(string) string

	// SQLite database used by SQLite service implementations.
	DB *sqlite.DB

	// closers run in reverse order on Close.
	closers []func() error
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{Getenv: os.Getenv}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	var firstErr error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.closers = nil
	if m.DB != nil {
		if err := m.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.DB = nil
	}
	return firstErr
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("sigmatch"),
		kong.Description("Signal ingestion and semantic matching pipeline."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'sigmatch --help' to see available commands")
	}

	cmd := args[0]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := yaml.LoadConfig(cli.Config, m.getenv())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cli.DB != "" {
		cfg.Database.Path = cli.DB
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}

	logger, err := newLogger(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.Path == "" {
		logger.Debug("config file not found, using defaults", "path", cli.Config)
	}
	deps.Config = cfg
	deps.Logger = logger

	m.DB = sqlite.NewDB(cfg.Database.Path)
	if err := m.DB.Open(); err != nil {
		fmt.Fprintf(stderr, "Hint: Set %s or --db to use a different database path\n", yaml.DatabaseEnv)
		return fmt.Errorf("failed to open database at %q: %w", cfg.Database.Path, err)
	}
	defer m.Close()

	deps.Sources = sqlite.NewSourceService(m.DB)
	deps.Articles = sqlite.NewArticleService(m.DB)
	deps.Targets = sqlite.NewTargetService(m.DB)
	deps.Matches = sqlite.NewMatchService(m.DB)
	deps.Content = sqlite.NewContentService(m.DB)
	deps.Quota = sqlite.NewQuotaService(m.DB)
	deps.Jobs = sqlite.NewJobService(m.DB)

	if err := m.wire(ctx, commandName(kongCtx.Command()), deps, stderr); err != nil {
		return err
	}

	return kongCtx.Run(deps)
}

// wire builds the job engines the command needs.
func (m *Main) wire(ctx context.Context, command string, deps *Dependencies, stderr io.Writer) error {
	w := &wiring{cfg: deps.Config, logger: deps.Logger, deps: deps}

	switch command {
	case "discover":
		w.discoverer()
	case "scrape":
		return m.wireScraper(w, stderr)
	case "embed", "targets embed":
		return m.wireEmbedder(ctx, w, stderr)
	case "match":
		w.matcher()
	case "select":
		w.selector()
	case "decay":
		w.decayer()
	case "run", "schedule":
		w.discoverer()
		if err := m.wireScraper(w, stderr); err != nil {
			return err
		}
		if err := m.wireEmbedder(ctx, w, stderr); err != nil {
			return err
		}
		w.matcher()
		w.decayer()
	}
	return nil
}

func (m *Main) wireScraper(w *wiring, stderr io.Writer) error {
	fetcher, err := w.fetcher()
	if err != nil {
		fmt.Fprintln(stderr, "Hint: Chrome or Chromium must be installed when scrape.browser is enabled")
		return fmt.Errorf("failed to start browser: %w", err)
	}
	m.closers = append(m.closers, fetcher.Close)
	w.scraper(fetcher)
	return nil
}

func (m *Main) wireEmbedder(ctx context.Context, w *wiring, stderr io.Writer) error {
	if w.cfg.Embedding.APIKey == "" {
		fmt.Fprintf(stderr, "%s environment variable not set. Get an API key at https://aistudio.google.com/apikey\n", yaml.GeminiAPIKeyEnv)
		return fmt.Errorf("%s not set", yaml.GeminiAPIKeyEnv)
	}
	embedder, err := w.embedder(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Hint: Check your %s is valid\n", yaml.GeminiAPIKeyEnv)
		return fmt.Errorf("failed to connect to Gemini API: %w", err)
	}
	w.worker(embedder)
	return nil
}

func (m *Main) getenv() func(string) string {
	if m.Getenv == nil {
		return os.Getenv
	}
	return m.Getenv
}

// commandName strips positional placeholders from a kong command path,
// so "select <org>" becomes "select".
func commandName(path string) string {
	var words []string
	for _, w := range strings.Fields(path) {
		if strings.HasPrefix(w, "<") {
			continue
		}
		words = append(words, w)
	}
	return strings.Join(words, " ")
}

// newLogger returns a text logger at the named level.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}
