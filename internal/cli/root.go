// Package cli implements ledgerctl, a command-line consumer of the sync
// engine.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"ledgersync/internal/config"
	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/identity"
)

// RootOptions holds global flags and the collaborators every command uses.
type RootOptions struct {
	Owner  string
	Format string // "json" | "text"

	// Open builds an engine for an owner. Commands log in themselves.
	Open Opener
	// Tokens signs development bearer tokens.
	Tokens *identity.Tokens
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// DefaultOptions returns options backed by cfg.
func DefaultOptions(cfg *config.Config) *RootOptions {
	return &RootOptions{
		Owner:  cfg.Owner,
		Format: "text",
		Open:   OpenConfigured(cfg),
		Tokens: identity.NewTokens(cfg.JWTSecret, cfg.JWTExpirationDur),
	}
}

// NewRootCommand creates the root command for ledgerctl.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Offline-first expense and income ledger",
		Long: "ledgerctl records expenses and income in a local database and " +
			"synchronizes them with the remote store whenever it is reachable.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Owner, "owner", opts.Owner, "owner id to act as (default $LEDGER_OWNER)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", opts.Format, "output format (json|text)")

	cmd.AddCommand(NewExpenseCommand(opts))
	cmd.AddCommand(NewIncomeCommand(opts))
	cmd.AddCommand(NewCategoryCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func (o *RootOptions) owner() (string, error) {
	if o.Owner == "" {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "owner is required: pass --owner or set LEDGER_OWNER")
	}
	return o.Owner, nil
}
