package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/rpmlink/internal/protocol"
)

// frameCmd represents the frame command
var frameCmd = &cobra.Command{
	Use:   "frame [command...]",
	Short: "Print command frames",
	Long: `Print the bytes written for each named command. Without arguments, list
the command catalog.`,
	Example: `  rpmlink frame
  rpmlink frame read-status stop-generic`,
	RunE: runFrame,
}

func runFrame(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "COMMAND\tOPCODE\tFAMILY\tFRAME")
		for _, c := range protocol.Commands() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, c.Opcode, c.Family, c.Build())
		}
		return w.Flush()
	}

	frames := make([]protocol.Frame, 0, len(args))
	for _, name := range args {
		c, err := protocol.LookupCommand(name)
		if err != nil {
			return err
		}
		frames = append(frames, c.Build())
	}
	cmd.SilenceUsage = true
	for _, f := range frames {
		if _, err := fmt.Fprintln(out, f); err != nil {
			return err
		}
	}
	return nil
}
