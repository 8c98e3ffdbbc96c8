package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/vacc/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Journal bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the vacc CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "vacc",
		Short: "vacc - virtual accelerator",
		Long: `A digital twin of a linear accelerator for control-room tooling.

The twin publishes the setpoints and readbacks of a beamline layout as
control-system channels, runs the beam-dynamics solver on the live
settings in a loop, and publishes the simulated diagnostics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVar(&opts.Journal, "journal", false, "also log to the systemd journal")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewDeckCommand(opts))
	cmd.AddCommand(NewExtractCommand(opts))
	cmd.AddCommand(NewChannelsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	return logging.New(logging.Options{
		Writer:  cmd.ErrOrStderr(),
		Verbose: o.Verbose,
		Journal: o.Journal,
	})
}
