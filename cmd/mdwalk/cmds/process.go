package cmds

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/crashwalk/mdwalk/pkg/fixture"
	"github.com/crashwalk/mdwalk/pkg/frame"
	"github.com/crashwalk/mdwalk/pkg/processor"
)

func newProcessCommand() *cobra.Command {
	var evilJSON string
	var searchPath string

	cmd := &cobra.Command{
		Use:   "process <fixture.yaml>",
		Short: "Process a dump fixture and print every thread's call stack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := fixture.Load(args[0])
			if err != nil {
				return err
			}
			dump, provider, err := doc.Build()
			if err != nil {
				return err
			}

			opts := processor.Options{EvilJSON: evilJSON, SymbolSearchPath: searchPath}
			state, err := processor.Process(dump, provider, opts)
			if err != nil {
				return err
			}

			printState(cmd.OutOrStdout(), state)
			return nil
		},
	}
	cmd.Flags().StringVar(&evilJSON, "evil-json", "", "path to the legacy side-channel thread-names/cert JSON file")
	cmd.Flags().StringVar(&searchPath, "symbol-search-path", "", "shell-quoted list of symbol search directories")
	return cmd
}

// out returns a colorable writer on a real terminal, the raw stream
// otherwise — mirroring the CLI's usual "don't paint ANSI codes into a
// redirected file" rule.
func out(w io.Writer) io.Writer {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return colorable.NewColorable(f)
	}
	return w
}

func printState(w io.Writer, state *processor.ProcessState) {
	w = out(w)
	fmt.Fprintf(w, "os=%s cpu=%s threads=%d\n", state.SystemInfo.OS, state.SystemInfo.CPU, len(state.Threads))
	if state.HasCrash {
		fmt.Fprintf(w, "crash: %s at 0x%x\n", state.CrashReason, state.CrashAddress)
	}
	if state.HasRequestingThread {
		fmt.Fprintf(w, "requesting thread: index %d\n", state.RequestingThread)
	}
	if len(state.SymbolSearchPaths) > 0 {
		fmt.Fprintf(w, "symbol search paths: %v\n", state.SymbolSearchPaths)
	}
	for i, stack := range state.Threads {
		fmt.Fprintf(w, "\nthread %d (id=%d, %s)\n", i, stack.ThreadID, stack.Info.String())
		for j, f := range stack.Frames {
			printFrame(w, j, f)
		}
	}
}

func printFrame(w io.Writer, index int, f *frame.StackFrame) {
	loc := "??"
	if f.Module != nil {
		loc = f.Module.Name()
	} else if len(f.UnloadedModules) > 0 {
		for name := range f.UnloadedModules {
			loc = name + " (unloaded)"
			break
		}
	}
	fn := ""
	if f.HasFunctionName {
		fn = " " + f.FunctionName
	}
	fmt.Fprintf(w, "  #%-2d 0x%016x %s [%s]%s\n", index, f.Instruction, loc, f.Trust.String(), fn)
}
