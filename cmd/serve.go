package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the stored articles over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, func(rt *runtime) error {
				return rt.app.Serve(cmd.Context())
			})
		},
	}
}
