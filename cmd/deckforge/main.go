// Package main runs the deckforge server: a local REST and WebSocket front
// end over the document store, the assignment engine, and the AI suggestion
// orchestrator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"deckforge/internal/api"
	"deckforge/internal/assign"
	"deckforge/internal/config"
	"deckforge/internal/deck"
	"deckforge/internal/events"
	"deckforge/internal/llm"
	"deckforge/internal/retry"
	"deckforge/internal/store"
	"deckforge/internal/suggest"
	"deckforge/internal/version"
)

var (
	configPath = flag.String("config", "", "Config file path (default: ~/.deckforge/config.toml)")
	storePath  = flag.String("store-path", "", "Document store path (default: ~/.deckforge/deckforge.db)")
)

func main() {
	flag.Parse()

	// A missing .env file is fine; the environment may carry the key already.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.App.DebugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("deckforge exited with error", zap.Error(err))
	}
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.LoadFrom(*configPath)
	}
	return config.Load()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting deckforge",
		zap.String("version", version.Version),
		zap.String("addr", cfg.App.ListenAddr))

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	state, err := hydrateState(context.Background(), st)
	if err != nil {
		return err
	}
	logger.Info("state hydrated",
		zap.Int("stacks", len(state.Stacks())),
		zap.Int("decks", len(state.Decks())))

	dispatcher := events.NewDispatcher(logger)
	dispatcher.Register(events.NewLoggingObserver(logger, cfg.App.DebugMode))

	model := newModel(cfg, logger)

	engine, err := newEngine(cfg, st, state, dispatcher, logger)
	if err != nil {
		return err
	}
	orchestrator := suggest.NewOrchestrator(state, st, model, engine, dispatcher, logger,
		suggest.WithLandTarget(cfg.Engine.LandTarget))

	server := api.NewServer(cfg.App.ListenAddr, state, engine, orchestrator, logger)
	dispatcher.Register(server.NewWebSocketObserver())

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStore(cfg *config.Config) (store.Store, error) {
	path := *storePath
	if path == "" {
		path = cfg.Store.Path
	}
	if path == "" {
		var err error
		path, err = config.DefaultStorePath()
		if err != nil {
			return nil, err
		}
	}

	sqliteCfg := store.DefaultSQLiteConfig(path)
	sqliteCfg.JournalMode = cfg.Store.JournalMode
	if busy, err := cfg.GetBusyTimeout(); err == nil {
		sqliteCfg.BusyTimeout = busy
	}
	st, err := store.OpenSQLite(sqliteCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}
	return st, nil
}

// hydrateState loads the full stack and deck collections into the in-memory
// mirror the engine and orchestrator read from.
func hydrateState(ctx context.Context, st store.Store) (*deck.State, error) {
	state := deck.NewState()

	stacks, err := st.List(ctx, store.Stacks)
	if err != nil {
		return nil, fmt.Errorf("failed to load stacks: %w", err)
	}
	for unitID, doc := range stacks {
		s, err := deck.StackFromDoc(unitID, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode stack %s: %w", unitID, err)
		}
		state.PutStack(s)
	}

	decks, err := st.List(ctx, store.Decks)
	if err != nil {
		return nil, fmt.Errorf("failed to load decks: %w", err)
	}
	for deckID, doc := range decks {
		d, err := deck.DeckFromDoc(deckID, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode deck %s: %w", deckID, err)
		}
		state.PutDeck(d)
	}

	state.RebuildIndex()
	return state, nil
}

// newModel builds the configured suggestion client, or returns nil when no
// backend is usable so suggestion runs degrade gracefully.
func newModel(cfg *config.Config, logger *zap.Logger) llm.Client {
	if cfg.Model.Provider == "ollama" {
		ollamaCfg := llm.DefaultOllamaConfig()
		ollamaCfg.BaseURL = cfg.Model.BaseURL
		// The model name default is the Gemini one; keep the local default
		// unless the user picked a model explicitly.
		if cfg.Model.Name != "" && cfg.Model.Name != config.DefaultConfig().Model.Name {
			ollamaCfg.Model = cfg.Model.Name
		}
		if cfg.Model.MaxAttempts > 0 {
			ollamaCfg.Retry.MaxAttempts = cfg.Model.MaxAttempts
		}
		if delay, err := cfg.GetModelBaseDelay(); err == nil {
			ollamaCfg.Retry.BaseDelay = delay
		}
		return llm.NewOllamaClient(ollamaCfg, logger)
	}

	modelCfg := llm.DefaultGeminiConfig(cfg.Model.APIKey)
	if cfg.Model.Name != "" {
		modelCfg.Model = cfg.Model.Name
	}
	if cfg.Model.RequestsPerMinute > 0 {
		modelCfg.RequestsPerMinute = cfg.Model.RequestsPerMinute
	}
	if cfg.Model.MaxAttempts > 0 {
		modelCfg.Retry.MaxAttempts = cfg.Model.MaxAttempts
	}
	if delay, err := cfg.GetModelBaseDelay(); err == nil {
		modelCfg.Retry.BaseDelay = delay
	}

	client, err := llm.NewGeminiClient(context.Background(), modelCfg, logger)
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) {
			logger.Warn("no model API key configured, suggestions disabled")
			return nil
		}
		logger.Warn("failed to create model client, suggestions disabled", zap.Error(err))
		return nil
	}
	return client
}

func newEngine(cfg *config.Config, st store.Store, state *deck.State, dispatcher *events.Dispatcher, logger *zap.Logger) (*assign.Engine, error) {
	delay, err := cfg.GetEngineBaseDelay()
	if err != nil {
		return nil, err
	}
	policy := retry.Policy{
		MaxAttempts: cfg.Engine.MaxAttempts,
		BaseDelay:   delay,
		MaxDelay:    10 * time.Second,
	}
	return assign.NewEngine(st, state, dispatcher, logger,
		assign.WithChunkSize(cfg.Engine.ChunkSize),
		assign.WithRetryPolicy(policy)), nil
}
