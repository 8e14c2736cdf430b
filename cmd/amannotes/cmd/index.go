package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amannotes/internal/output"
)

// progressInterval is how often the index command redraws progress.
const progressInterval = 250 * time.Millisecond

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild the index from the notes directory",
		Long: `Read every note under notes.root and rebuild both the lexical and the
vector index from scratch. Notes deleted from disk since the last run are
dropped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd)
		},
	}
}

func runIndex(ctx context.Context, cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out.Statusf("📂", "Notes: %s", a.notes.Root())

	// Drop first so notes removed from disk do not survive the rebuild.
	a.coord.DropAll(ctx)
	total, started, err := a.fullReindex(ctx)
	if err != nil {
		return err
	}
	if !started {
		return fmt.Errorf("full reindex did not start")
	}

	done := make(chan struct{})
	go func() {
		a.coord.Wait()
		close(done)
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			out.Newline()
			out.Warning("Interrupted, stopping reindex")
			_ = a.Close()
			<-done
			return ctx.Err()
		case <-ticker.C:
			if p := a.coord.Status(ctx).Progress; p != nil && p.NotesTotal > 0 && p.NotesProcessed < p.NotesTotal {
				out.Progress(p.NotesProcessed, p.NotesTotal, "notes")
			}
		case <-done:
			st := a.coord.Status(ctx)
			if p := st.Progress; p != nil {
				if p.NotesTotal > 0 {
					out.Progress(p.NotesTotal, p.NotesTotal, "notes")
				}
				if p.ErrorMessage != "" {
					return fmt.Errorf("reindex failed: %s", p.ErrorMessage)
				}
				if p.NotesFailed > 0 {
					out.Warningf("%d note(s) could not be indexed", p.NotesFailed)
				}
			}
			out.Successf("Indexed %d note(s)", total)
			return nil
		}
	}
}
