// Package cmd implements the iDict command line interface: a small
// toolkit to benchmark (dict perf) and inspect (dict stats) dict-backed
// stores. Configuration flows through cobra flags, viper bindings and
// optional .env files.
package cmd
