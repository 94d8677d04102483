// Package cmds wires the mdwalk CLI's cobra command tree.
package cmds

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/crashwalk/mdwalk/internal/logflags"
)

var logSpec string

// New builds the root command, mirroring the delve CLI's pattern of a
// single persistent --log flag shared by every subcommand.
func New() *cobra.Command {
	root := &cobra.Command{
		Use:   "mdwalk",
		Short: "Reconstruct call stacks from a minidump",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logSpec == "" {
				return nil
			}
			return logflags.Setup(logSpec)
		},
	}
	registerPersistentFlags(root.PersistentFlags())

	root.AddCommand(newProcessCommand())
	root.AddCommand(newModulesCommand())
	return root
}

func registerPersistentFlags(flags *pflag.FlagSet) {
	flags.StringVar(&logSpec, "log", "", "comma-separated subsystems to trace (unwind,symbolize,processor)")
}
