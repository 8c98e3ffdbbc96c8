package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/vacc/internal/deck"
	"github.com/roach88/vacc/internal/lattice"
)

// DeckOptions holds flags for the deck command.
type DeckOptions struct {
	*RootOptions
	Settings string
	FromDeck string
	Output   string
}

// DeckResult summarises a generated deck.
type DeckResult struct {
	Hash    string   `json:"deck_hash"`
	Records int      `json:"records"`
	Outputs []string `json:"outputs"`
	Missing []string `json:"missing,omitempty"`
	Path    string   `json:"path,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// NewDeckCommand creates the deck command.
func NewDeckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deck <layout>",
		Short: "Generate a solver input deck",
		Long: `Generate the solver input deck for a layout and a set of settings.

Channels missing from the settings are written as zero and reported as a
warning. Without --output the deck is printed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeck(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Settings, "settings", "", "settings file (YAML)")
	cmd.Flags().StringVar(&opts.FromDeck, "from-deck", "", "take settings from an existing deck")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runDeck(opts *DeckOptions, layoutPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	layout, err := loadLayout(layoutPath)
	if err != nil {
		return formatter.failLoad(err)
	}
	settings, err := loadSettings(layout.Elements, opts.Settings, opts.FromDeck)
	if err != nil {
		return formatter.failLoad(err)
	}

	builder, err := deck.NewBuilder(layout.Config.Integrator)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDeck, "creating deck builder", err)
	}
	d, err := builder.Build(layout.Elements, settings)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDeck, "building deck", err)
	}
	text, err := deck.Render(layout.Config.Header(), d.Records)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDeck, "rendering deck", err)
	}
	if len(d.Missing) > 0 {
		formatter.Warn("%d channel(s) missing from settings, written as 0", len(d.Missing))
		for _, ch := range d.Missing {
			formatter.VerboseLog("  missing: %s", ch)
		}
	}

	result := DeckResult{
		Hash:    lattice.DeckHash(text),
		Records: len(d.Records),
		Missing: d.Missing,
		Path:    opts.Output,
	}
	for _, el := range d.Outputs {
		result.Outputs = append(result.Outputs, el.Attrs().Name)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(text), 0o644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "writing deck", err)
		}
		return formatter.Success(result, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "✓ Wrote %d record(s) to %s (%s)\n", result.Records, opts.Output, result.Hash)
			return err
		})
	}

	result.Text = text
	return formatter.Success(result, func(w io.Writer) error {
		_, err := io.WriteString(w, text)
		return err
	})
}
