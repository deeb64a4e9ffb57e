// Package main provides the graphtag command line entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/graphtag/internal/config"
	gormdb "github.com/thebtf/graphtag/internal/db/gorm"
	"github.com/thebtf/graphtag/internal/ingest"
	"github.com/thebtf/graphtag/internal/pipeline"
	"github.com/thebtf/graphtag/internal/profiles"
	"github.com/thebtf/graphtag/internal/server"
	"github.com/thebtf/graphtag/internal/watcher"
)

// Version is set at build time via ldflags.
var Version = "dev"

const usage = `Usage: graphtag [build|watch|serve] [flags]

Commands:
  build   cluster the input directory once and write the component map (default)
  watch   rebuild whenever record files in the input directory change
  serve   run the HTTP API; POST /api/runs triggers a build

Flags:
`

// cliOptions holds the parsed command line.
type cliOptions struct {
	set        map[string]bool
	input      string
	output     string
	pattern    string
	profile    string
	db         string
	percentile float64
	workers    int
	port       int
	debug      bool
	noStore    bool
	watch      bool
}

func main() {
	cmd, args := splitCommand(os.Args[1:])

	fs := flag.NewFlagSet("graphtag "+cmd, flag.ExitOnError)
	opts := registerFlags(fs)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	// Setup logging - stdout stays free for piping, logs go to stderr
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
	setLogLevel(config.Get().LogLevel, opts.debug)

	cfg, err := loadConfig(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setLogLevel(cfg.LogLevel, opts.debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "build":
		err = runBuild(ctx, cfg, opts)
	case "watch":
		err = runWatch(ctx, cfg, opts)
	case "serve":
		err = runServe(ctx, cfg, opts)
	default:
		fs.Usage()
		log.Fatal().Str("command", cmd).Msg("Unknown command")
	}

	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("graphtag failed")
		stop()
		os.Exit(1)
	}
}

// splitCommand separates an optional leading subcommand from the flags.
func splitCommand(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "build", args
}

func registerFlags(fs *flag.FlagSet) *cliOptions {
	opts := &cliOptions{set: make(map[string]bool)}
	fs.StringVar(&opts.input, "input", "", "Directory of classified chunk records")
	fs.StringVar(&opts.output, "output", "", "Directory for connected_components.json")
	fs.StringVar(&opts.pattern, "pattern", "", "Glob selecting record files (default \"*.json\")")
	fs.StringVar(&opts.profile, "profile", "", "Named corpus profile from ~/.graphtag/profiles.yml")
	fs.StringVar(&opts.db, "db", "", "Run store path (sqlite) or DSN (postgres)")
	fs.Float64Var(&opts.percentile, "threshold-percentile", config.DefaultThresholdPercentile, "Prune edges below this weight percentile; values below 1 are fractions")
	fs.IntVar(&opts.workers, "workers", 0, "Graph builder goroutines (0 = GOMAXPROCS)")
	fs.IntVar(&opts.port, "port", 0, "HTTP port for serve")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&opts.noStore, "no-store", false, "Do not record runs in the database")
	fs.BoolVar(&opts.watch, "watch", false, "With serve: also rebuild on input changes")
	return opts
}

// loadConfig layers settings.json, environment, profile and flags, in that order.
func loadConfig(opts *cliOptions) (*config.Config, error) {
	if err := config.EnsureAll(); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure data directory")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if opts.profile != "" {
		reg, err := profiles.Load(config.ProfilesPath())
		if err != nil {
			return nil, fmt.Errorf("load profiles: %w", err)
		}
		p, ok := reg.Get(opts.profile)
		if !ok {
			return nil, fmt.Errorf("unknown profile %q (available: %s)", opts.profile, strings.Join(reg.Names(), ", "))
		}
		cfg = p.Apply(cfg)
		log.Debug().Str("profile", p.Name).Msg("Applied profile")
	}

	if opts.set["input"] {
		cfg.InputDir = opts.input
	}
	if opts.set["output"] {
		cfg.OutputDir = opts.output
	}
	if opts.set["pattern"] {
		cfg.Pattern = opts.pattern
	}
	if opts.set["threshold-percentile"] {
		cfg.ThresholdPercentile = opts.percentile
	}
	if opts.set["workers"] {
		cfg.Workers = opts.workers
	}
	if opts.set["port"] {
		cfg.HTTPPort = opts.port
	}
	if opts.set["db"] {
		if cfg.DBDriver == gormdb.DriverPostgres {
			cfg.DBDSN = opts.db
		} else {
			cfg.DBPath = opts.db
		}
	}
	return cfg, nil
}

func setLogLevel(level string, debug bool) {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	if level == "" {
		return
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, keeping info")
		return
	}
	zerolog.SetGlobalLevel(lvl)
}

// app bundles the components shared by every command.
type app struct {
	loader *ingest.Loader
	runner *pipeline.Runner
	store  *gormdb.Store
	runs   *gormdb.RunStore
}

func newApp(cfg *config.Config, noStore bool) (*app, error) {
	var counter ingest.TokenCounter
	if cfg.CountTokens {
		tc, err := ingest.NewTiktokenCounter()
		if err != nil {
			log.Warn().Err(err).Msg("Token counting disabled")
		} else {
			counter = tc
		}
	}

	a := &app{loader: ingest.NewLoader(cfg.Pattern, counter)}
	a.runner = pipeline.NewRunner(cfg, a.loader)

	if noStore {
		return a, nil
	}

	store, err := gormdb.NewStore(gormdb.Config{
		Driver:   cfg.DBDriver,
		Path:     cfg.DBPath,
		DSN:      cfg.DBDSN,
		MaxConns: cfg.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	a.store = store
	a.runs = gormdb.NewRunStore(store)
	a.runner.SetRecorder(a.runs)
	return a, nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close run store")
		}
	}
}

func runBuild(ctx context.Context, cfg *config.Config, opts *cliOptions) error {
	a, err := newApp(cfg, opts.noStore)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.runner.RunDir(ctx)
	if err != nil {
		return err
	}

	for _, c := range res.Clusters {
		topics := make([]string, 0, len(c.TopTopics))
		for _, t := range c.TopTopics {
			topics = append(topics, t.Topic)
		}
		log.Debug().
			Int("cluster", c.ID).
			Int("size", c.Size).
			Int("tokens", c.Tokens).
			Strs("topics", topics).
			Msg("Cluster")
	}
	log.Info().
		Str("run_id", res.RunID).
		Int("components", res.Stats.Count).
		Int("largest", res.Stats.MaxSize).
		Str("output", res.OutputPath).
		Msg("Build complete")
	return nil
}

// startWatcher rebuilds on input changes until the returned stop func is called.
func startWatcher(ctx context.Context, a *app) (func(), error) {
	w, err := watcher.New(a.runner.InputDir(), a.loader.Matches, func() {
		if _, err := a.runner.RunDir(ctx); err != nil {
			log.Error().Err(err).Msg("Rebuild failed")
		}
	})
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		return nil, err
	}
	return func() {
		if err := w.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop watcher")
		}
	}, nil
}

func runWatch(ctx context.Context, cfg *config.Config, opts *cliOptions) error {
	a, err := newApp(cfg, opts.noStore)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.runner.RunDir(ctx); err != nil {
		log.Error().Err(err).Msg("Initial build failed, waiting for changes")
	}

	stopWatch, err := startWatcher(ctx, a)
	if err != nil {
		return err
	}
	defer stopWatch()

	<-ctx.Done()
	log.Info().Msg("Shutting down watcher")
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, opts *cliOptions) error {
	a, err := newApp(cfg, opts.noStore)
	if err != nil {
		return err
	}
	defer a.Close()

	var store server.RunStore
	if a.runs != nil {
		store = a.runs
	}
	svc := server.New(Version, store, a.runner, nil)
	a.runner.SetNotifier(svc.Broadcaster())

	if opts.watch {
		stopWatch, err := startWatcher(ctx, a)
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	return svc.Start(ctx, fmt.Sprintf(":%d", cfg.HTTPPort))
}
