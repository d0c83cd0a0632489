package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token for the gateway",
		Long: "token signs a JWT for --owner with JWT_SECRET. Use it as REMOTE_TOKEN " +
			"for REMOTE_BACKEND=http when the gateway uses the same secret.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := opts.owner()
			if err != nil {
				return err
			}
			token, err := opts.Tokens.Issue(owner)
			if err != nil {
				return err
			}
			return newPrinter(opts, cmd.OutOrStdout()).print(map[string]string{"token": token}, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}
}
