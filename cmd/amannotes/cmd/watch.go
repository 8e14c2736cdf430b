package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amannotes/internal/notes"
	"github.com/Aman-CERP/amannotes/internal/output"
	"github.com/Aman-CERP/amannotes/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var poll bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index in sync with the notes directory",
		Long: `Index every note, then follow changes under notes.root until
interrupted. Creates and edits are reindexed, deletions and renames are
removed from both indexes. Editing an ignore file re-evaluates every note.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, appOptions{logToStderr: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := output.New(cmd.OutOrStdout())
			out.Statusf("👀", "Watching %s (Ctrl+C to stop)", a.notes.Root())
			err = runWatcher(ctx, a, poll || a.cfg.Watch.ForcePolling)
			out.Status("", "Stopped")
			return err
		},
	}

	cmd.Flags().BoolVar(&poll, "poll", false, "Poll the tree instead of using file system events")
	return cmd
}

// runWatcher seeds the index with a full reindex and applies file changes
// until ctx is done.
func runWatcher(ctx context.Context, a *app, poll bool) error {
	cfg := a.cfg
	syncer, err := watcher.NewSyncer(a.coord, func() (watcher.Source, error) {
		return notes.NewDir(cfg.Notes.Root, notes.Options{
			Extensions: cfg.Notes.Extensions,
			Exclude:    cfg.Notes.Exclude,
		})
	})
	if err != nil {
		return err
	}

	seed, err := syncer.Seed(ctx)
	if err != nil {
		return err
	}
	if !a.coord.ReindexAll(ctx, seed) {
		slog.Info("initial_reindex_skipped", slog.Int("notes", len(seed)))
	}

	hw, err := watcher.NewHybridWatcher(syncer, watcher.Options{
		Debounce:     cfg.Watch.DebounceDuration(),
		ForcePolling: poll,
	})
	if err != nil {
		return err
	}
	defer func() { _ = hw.Stop() }()

	slog.Info("watch_started",
		slog.String("root", a.notes.Root()),
		slog.String("mode", hw.Mode()),
		slog.Int("notes", len(seed)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hw.Start(gctx, cfg.Notes.Root)
	})
	g.Go(func() error {
		syncer.Run(gctx, hw.Events())
		return nil
	})

	err = g.Wait()
	slog.Info("watch_stopped", slog.Int("known_notes", syncer.Known()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
