package cmd

import (
	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
	"github.com/Aman-CERP/amannotes/internal/output"
)

func newDropCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Delete everything from both indexes",
		Long:  `Remove every chunk from the lexical and vector indexes. The notes on disk are not touched.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return amerrors.New(amerrors.ErrCodeInvalidInput, "refusing to drop the index without confirmation", nil).
					WithSuggestion("Re-run with --yes")
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			a.coord.DropAll(ctx)
			output.New(cmd.OutOrStdout()).Success("Index dropped")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")
	return cmd
}
