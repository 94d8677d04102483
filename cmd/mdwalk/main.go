// Command mdwalk is the command-line front-end over the stack-walking
// core: point it at a YAML dump fixture (see pkg/fixture) and
// (optionally) a symbol search path and it prints the reconstructed
// call stack for every thread.
package main

import (
	"fmt"
	"os"

	"github.com/crashwalk/mdwalk/cmd/mdwalk/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
