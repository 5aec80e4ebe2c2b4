package dictcmd

import (
	"github.com/spf13/cobra"
)

// DictCommands groups the tooling that works on an in-process dict-backed
// store: benchmarks and hash table inspection.
var DictCommands = &cobra.Command{
	Use:   "dict",
	Short: "Benchmark and inspect dict-backed stores",
}

func init() {
	DictCommands.AddCommand(perfCmd)
	DictCommands.AddCommand(statsCmd)
}
