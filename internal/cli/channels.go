package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/vacc/internal/channels"
)

// NewChannelsCommand creates the channels command.
func NewChannelsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "channels <layout>",
		Short:         "List the channels a layout publishes",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChannels(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runChannels(opts *RootOptions, layoutPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	layout, err := loadLayout(layoutPath)
	if err != nil {
		return formatter.failLoad(err)
	}
	registry, err := channels.NewRegistry(layout.Elements)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLayout, "deriving channels", err)
	}

	defs := registry.Definitions()
	return formatter.Success(defs, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tKIND\tUNIT\tELEMENT\tDESCRIPTION")
		for _, d := range defs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Name, d.Kind, d.Unit, d.Element, d.Description)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "\n%d channel(s), %d writable\n", len(defs), len(registry.WriteChannels()))
		return err
	})
}
