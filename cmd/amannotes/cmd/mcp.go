package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newMCPCmd() *cobra.Command {
	var (
		watch bool
		poll  bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools on stdio",
		Long: `Run an MCP server on stdin/stdout exposing search_notes, index_status
and reindex_notes. stdout carries JSON-RPC only; logs go to the log file.`,
		Example: `  # Claude Desktop / any MCP client
  {"command": "amannotes", "args": ["mcp", "--watch", "-C", "/path/to/notes"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMCP(ctx, watch, poll)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Also keep the index in sync with the notes directory")
	cmd.Flags().BoolVar(&poll, "poll", false, "Poll the tree instead of using file system events")
	return cmd
}

func runMCP(ctx context.Context, watch, poll bool) error {
	// stderr stays quiet unless --debug: some clients surface it as errors.
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv, err := newMCPServer(a)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The client closing stdin ends the session and the watcher.
		defer cancel()
		return srv.Serve(gctx, "stdio")
	})
	if watch {
		g.Go(func() error {
			return runWatcher(gctx, a, poll || a.cfg.Watch.ForcePolling)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
