// Command arrowdyn inspects, validates and projects Arrow IPC and Parquet files
// using schemas discovered at runtime.
package main

import (
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/spf13/cobra"
)

func main() {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)

	root := &cobra.Command{
		Use:           "arrowdyn",
		Short:         "Inspect, validate and project Arrow and Parquet files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if n := alloc.CurrentAlloc(); n != 0 {
				fmt.Fprintf(os.Stderr, "Warning: %d bytes still allocated\n", n)
			}
		},
	}
	addCommands(root, alloc)

	if err := root.Execute(); err != nil {
		fatal("%v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", fmt.Sprintf(format, args...))
	os.Exit(1)
}
