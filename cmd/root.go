package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/iDict/cmd/dictcmd"
	"github.com/ValentinKolb/iDict/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "idict",
		Short: "incremental-rehash dictionary toolkit",
		Long: fmt.Sprintf(`iDict (v%s)

An in-memory dictionary library with incremental rehashing,
plus tooling to benchmark and inspect its hash tables.`, Version),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.LoadEnv()
			_ = viper.BindPFlags(cmd.Flags())
			util.SetupLogging()
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of iDict",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("iDict v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(dictcmd.DictCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("log level to use (debug, info, warn, error)"))
	_ = viper.BindPFlag(key, RootCmd.PersistentFlags().Lookup(key))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
