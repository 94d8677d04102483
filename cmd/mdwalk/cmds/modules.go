package cmds

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crashwalk/mdwalk/pkg/fixture"
	"github.com/crashwalk/mdwalk/pkg/processor"
)

func newModulesCommand() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "modules <fixture.yaml>",
		Short: "List loaded/unloaded module names, optionally filtered by prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := fixture.Load(args[0])
			if err != nil {
				return err
			}
			dump, _, err := doc.Build()
			if err != nil {
				return err
			}
			idx := processor.NewModuleNameIndex(dump.ModuleList, dump.UnloadedModuleList)
			names := idx.MatchPrefix(prefix)
			w := cmd.OutOrStdout()
			for _, n := range names {
				fmt.Fprintln(w, n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only list module names beginning with this prefix")
	return cmd
}
