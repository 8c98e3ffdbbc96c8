package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/vacc/internal/lattice"
)

// ExtractOptions holds flags for the extract command.
type ExtractOptions struct {
	*RootOptions
	Output string
}

// NewExtractCommand creates the extract command.
func NewExtractCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExtractOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "extract <layout> <deck>",
		Short: "Reconstruct settings from a deck",
		Long: `Reconstruct the settings a deck was generated from.

The deck must have been built for the same layout. Settings are written as
YAML, or inside the JSON response with --format json.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runExtract(opts *ExtractOptions, layoutPath, deckPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	layout, err := loadLayout(layoutPath)
	if err != nil {
		return formatter.failLoad(err)
	}
	settings, err := extractDeck(layout.Elements, deckPath)
	if err != nil {
		return formatter.failLoad(err)
	}
	formatter.VerboseLog("Extracted %d channel(s) from %s", len(settings), deckPath)

	var buf bytes.Buffer
	if err := lattice.WriteSettings(&buf, settings); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeSettings, "encoding settings", err)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, buf.Bytes(), 0o644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "writing settings", err)
		}
		return formatter.Success(map[string]any{"path": opts.Output, "channels": len(settings)}, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "✓ Wrote %d channel(s) to %s\n", len(settings), opts.Output)
			return err
		})
	}

	return formatter.Success(settings, func(w io.Writer) error {
		_, err := w.Write(buf.Bytes())
		return err
	})
}
