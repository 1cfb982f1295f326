package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/cartsync/internal/version"
)

// NewVersionCommand печатает версию сборки.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				v, c, d := version.Info()
				return json.NewEncoder(out).Encode(map[string]string{"version": v, "commit": c, "date": d})
			}
			_, err := fmt.Fprintln(out, version.String())
			return err
		},
	}
}
