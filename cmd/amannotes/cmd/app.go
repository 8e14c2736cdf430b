package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Aman-CERP/amannotes/internal/async"
	"github.com/Aman-CERP/amannotes/internal/chunk"
	"github.com/Aman-CERP/amannotes/internal/config"
	"github.com/Aman-CERP/amannotes/internal/embed"
	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
	"github.com/Aman-CERP/amannotes/internal/index"
	"github.com/Aman-CERP/amannotes/internal/lock"
	"github.com/Aman-CERP/amannotes/internal/logging"
	"github.com/Aman-CERP/amannotes/internal/notes"
	"github.com/Aman-CERP/amannotes/internal/store"
)

// app is an opened notebook: config, stores, coordinator and the notes
// directory, holding the data directory lock.
type app struct {
	cfg      *config.Config
	coord    *index.Coordinator
	notes    *notes.Dir
	provider *embed.Provider
	lock     *lock.DirLock
}

// appOptions tunes openApp per command.
type appOptions struct {
	// logToStderr keeps config-driven stderr logging. Short commands turn
	// it off so log lines do not mix with their output.
	logToStderr bool
}

// openApp loads the config in configDir and opens everything a command
// needs. The caller must Close the result.
func openApp(ctx context.Context, opts appOptions) (_ *app, err error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	if err := setupConfigLogging(cfg.Logging, opts.logToStderr); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeStoreUnavailable, "cannot create data directory", err).
			WithDetail("data_dir", dataDir)
	}
	a.lock = lock.New(dataDir)
	if err := a.lock.Acquire(); err != nil {
		return nil, err
	}
	if async.HasIncompleteLock(dataDir) {
		slog.Warn("incomplete_reindex_detected",
			slog.String("data_dir", dataDir),
			slog.String("hint", "run 'amannotes index' to rebuild"))
	}

	a.notes, err = notes.NewDir(cfg.Notes.Root, notes.Options{
		Extensions: cfg.Notes.Extensions,
		Exclude:    cfg.Notes.Exclude,
	})
	if err != nil {
		return nil, err
	}

	chunker, err := chunk.New(cfg.Chunking.MaxChars)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "invalid chunking config", err)
	}

	lexStore, err := store.NewLexicalStore(store.LexicalBackend(strings.ToLower(cfg.Lexical.Backend)), dataDir)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeStoreUnavailable, "cannot open lexical index", err).
			WithDetail("backend", cfg.Lexical.Backend)
	}
	lexical := index.NewLexicalIndex(lexStore, chunker)

	vector, err := openVectorIndex(ctx, cfg, chunker)
	if err != nil {
		_ = lexical.Close()
		return nil, err
	}

	policy, err := index.ParseMergePolicy(cfg.Index.MergePolicy)
	if err != nil {
		_ = lexical.Close()
		if vector != nil {
			_ = vector.Close()
		}
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, err.Error(), err)
	}

	coordCfg := index.Config{
		Cooldown:     cfg.Index.CooldownDuration(),
		MergePolicy:  policy,
		Dedup:        cfg.Index.Dedup,
		Workers:      cfg.Index.Workers,
		BatchSize:    cfg.Index.BatchSize,
		DefaultLimit: cfg.Index.DefaultLimit,
		DataDir:      dataDir,
	}
	// A nil *VectorIndex must not reach the Backend interface.
	if vector != nil {
		a.provider = vector.Provider()
		a.coord = index.NewCoordinator(lexical, vector, coordCfg)
	} else {
		a.coord = index.NewCoordinator(lexical, nil, coordCfg)
	}

	slog.Info("notebook_opened",
		slog.String("root", a.notes.Root()),
		slog.String("data_dir", dataDir),
		slog.String("lexical", cfg.Lexical.Backend),
		slog.String("vector", vectorDesc(cfg, vector)),
		slog.String("merge_policy", string(policy)))
	return a, nil
}

// openVectorIndex returns nil when embeddings are disabled.
func openVectorIndex(ctx context.Context, cfg *config.Config, chunker *chunk.Chunker) (*index.VectorIndex, error) {
	ec := cfg.Embeddings
	embedder, err := embed.NewEmbedder(ctx, embed.Options{
		Provider:         embed.ParseProvider(ec.Provider),
		Dimensions:       ec.Dimensions,
		CacheSize:        ec.CacheSize,
		FallbackToStatic: ec.FallbackToStatic,
		Ollama: embed.OllamaConfig{
			Host:      ec.OllamaHost,
			Model:     ec.Model,
			BatchSize: ec.BatchSize,
			Timeout:   ec.TimeoutDuration(),
		},
		OpenAI: embed.OpenAIConfig{
			BaseURL:   ec.OpenAIBaseURL,
			APIKey:    ec.OpenAIAPIKey,
			Model:     ec.Model,
			BatchSize: ec.BatchSize,
		},
	})
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeEmbedderUnavailable, "cannot create embedder", err).
			WithDetail("provider", ec.Provider)
	}
	if embedder == nil {
		return nil, nil
	}

	vecStore, err := store.NewVectorStore(store.VectorOptions{
		Backend:    store.VectorBackend(strings.ToLower(cfg.Vector.Backend)),
		Dimensions: ec.Dimensions,
		DataDir:    cfg.DataDir(),
		HNSW:       cfg.Vector.HNSW,
		Qdrant:     cfg.Vector.Qdrant,
	})
	if err != nil {
		_ = embedder.Close()
		return nil, amerrors.New(amerrors.ErrCodeStoreUnavailable, "cannot open vector index", err).
			WithDetail("backend", cfg.Vector.Backend)
	}

	provider := embed.NewProvider(embedder, ec.Dimensions)
	vector, err := index.NewVectorIndex(vecStore, chunker, provider)
	if err != nil {
		_ = provider.Close()
		_ = vecStore.Close()
		return nil, err
	}
	return vector, nil
}

func vectorDesc(cfg *config.Config, vector *index.VectorIndex) string {
	if vector == nil {
		return "disabled"
	}
	return cfg.Vector.Backend
}

// setupConfigLogging replaces the bootstrap logger with one built from
// the logging section of the config.
func setupConfigLogging(lc logging.Config, toStderr bool) error {
	if debugMode {
		lc.Level = "debug"
		toStderr = true
	}
	lc.WriteToStderr = lc.WriteToStderr && toStderr
	cleanup, err := logging.SetupDefault(lc)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	closeLogging()
	loggingCleanup = cleanup
	return nil
}

// Close stops the coordinator, closes the stores and releases the lock.
func (a *app) Close() error {
	var errs []error
	if a.coord != nil {
		errs = append(errs, a.coord.Close())
	}
	if a.lock != nil {
		errs = append(errs, a.lock.Release())
	}
	return errors.Join(errs...)
}

// fullReindex lists every note and starts a full reindex. It returns the
// note count and whether the reindex was started.
func (a *app) fullReindex(ctx context.Context) (int, bool, error) {
	all, err := a.notes.List(ctx)
	if err != nil {
		return 0, false, amerrors.New(amerrors.ErrCodeIndexFailed, "could not list notes", err)
	}
	return len(all), a.coord.ReindexAll(ctx, all), nil
}
