package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amannotes/internal/index"
	"github.com/Aman-CERP/amannotes/internal/output"
	"github.com/Aman-CERP/amannotes/pkg/version"
)

// statusJSON is the --json form of the status command.
type statusJSON struct {
	Version    string       `json:"version"`
	Root       string       `json:"root"`
	DataDir    string       `json:"data_dir"`
	Embeddings string       `json:"embeddings"`
	Index      index.Status `json:"index"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status",
		Long:  `Show the configured backends, merge policy and how many notes and chunks each index holds.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			st := a.coord.Status(ctx)
			embeddings := "disabled"
			if a.provider != nil && a.provider.Enabled() {
				embeddings = a.provider.ModelName()
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(statusJSON{
					Version:    version.Version,
					Root:       a.notes.Root(),
					DataDir:    a.cfg.DataDir(),
					Embeddings: embeddings,
					Index:      st,
				})
			}

			out := output.New(cmd.OutOrStdout())
			out.KeyValue("Notes", a.notes.Root())
			out.KeyValue("Data", a.cfg.DataDir())
			out.KeyValue("Embeddings", embeddings)
			out.Newline()
			out.IndexStatus(st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
