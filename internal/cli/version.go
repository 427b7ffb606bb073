package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

const modulePath = "github.com/mesh-intelligence/schematic"

// Version is overridden at build time with -ldflags "-X ...cli.Version=...".
var Version = "0.1.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the schematic version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "schematic v%s\nmodule: %s\ngo: %s\n", Version, modulePath, runtime.Version())
			return nil
		},
	}
}
