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

	"github.com/Aman-CERP/amannotes/internal/httpapi"
	"github.com/Aman-CERP/amannotes/internal/mcp"
	"github.com/Aman-CERP/amannotes/pkg/version"
)

// serveOptions holds CLI flags for serve.
type serveOptions struct {
	addr    string
	mcp     bool
	noWatch bool
	poll    bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and keep the index in sync",
		Long: `Start the HTTP API (search, status, per-note updates, full reindex) and
watch the notes directory for changes.

MCP clients can connect over streamable HTTP at /mcp. With --mcp (or
server.mcp in the config) the MCP tools are also served on stdio.`,
		Example: `  amannotes serve
  amannotes serve --addr 127.0.0.1:9000 --no-watch
  curl 'http://127.0.0.1:8765/search?q=garden&limit=5'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (default from server.addr)")
	cmd.Flags().BoolVar(&opts.mcp, "mcp", false, "Also serve MCP tools on stdio")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not watch the notes directory")
	cmd.Flags().BoolVar(&opts.poll, "poll", false, "Poll the tree instead of using file system events")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	a, err := openApp(ctx, appOptions{logToStderr: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	mcpServer, err := newMCPServer(a)
	if err != nil {
		return err
	}

	addr := opts.addr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	srv := httpapi.NewServer(addr, httpapi.NewRouter(httpapi.Deps{
		Index:   a.coord,
		Notes:   a.notes,
		MCP:     mcpServer.HTTPHandler(),
		Version: version.Version,
	}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if !opts.noWatch {
		g.Go(func() error {
			return runWatcher(gctx, a, opts.poll || a.cfg.Watch.ForcePolling)
		})
	}
	if opts.mcp || a.cfg.Server.MCP {
		g.Go(func() error {
			slog.Info("mcp_stdio_started")
			return mcpServer.Serve(gctx, "stdio")
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newMCPServer exposes the app's index over MCP.
func newMCPServer(a *app) (*mcp.Server, error) {
	opts := mcp.Options{
		Notes: a.notes,
		Root:  a.notes.Root(),
	}
	// A nil *embed.Provider must not reach the interface.
	if a.provider != nil {
		opts.Embedder = a.provider
	}
	return mcp.NewServer(a.coord, opts)
}
