package dictcmd

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/iDict/cmd/util"
	"github.com/ValentinKolb/iDict/lib/store"
	"github.com/ValentinKolb/iDict/lib/store/hstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for dict-backed stores",
		Long:    "Runs in-process benchmarks against a freshly created hstore and prints ops/sec per operation.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfValueSizeKB = 1
	perfNumThreads  = 8
	perfKeySpread   = 1000
	perfPresize     = 0
	perfSkip        = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfCmd.Flags().Int(key, 8, util.WrapString("Number of parallel goroutines to use for the benchmark"))
	key = "value-size"
	perfCmd.Flags().Int(key, 1, util.WrapString("Size of the values to store (in KB)"))
	key = "keys"
	perfCmd.Flags().Int(key, 1000, util.WrapString("How many different keys to use for the tests"))
	key = "presize"
	perfCmd.Flags().Int(key, 0, util.WrapString("Pre-size the store for this many keys (0 = grow on demand)"))
	key = "csv"
	perfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfValueSizeKB = viper.GetInt("value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfPresize = viper.GetInt("presize")
	if skip := viper.GetString("skip"); skip != "" {
		perfSkip = strings.Split(skip, ",")
	}

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for dict-backed stores")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Threads:    %d\n", perfNumThreads)
	fmt.Printf("  Keys:       %d\n", perfKeySpread)
	fmt.Printf("  Value size: %d KB\n", perfValueSizeKB)
	fmt.Printf("  Presize:    %d\n", perfPresize)
	fmt.Println()

	value := make([]byte, perfValueSizeKB*1024)
	newStore := func() store.IStore {
		return hstore.NewHashStore(&hstore.StoreOptions{
			PresizeHint: uint64(perfPresize),
		})
	}

	// Create results map
	results := make(map[string]testing.BenchmarkResult)
	record := func(name string, result testing.BenchmarkResult) {
		results[name] = result
		printResult(name, result)
	}

	record("set", testing.Benchmark(func(b *testing.B) {
		if shouldSkip("set") {
			return
		}
		s := newStore()
		b.Cleanup(func() { s.Close() })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := s.Set(perfKey(counter), value); err != nil {
					b.Errorf("(set) - error setting key: %v", err)
				}
				counter++
			}
		})
	}))

	record("get", testing.Benchmark(func(b *testing.B) {
		if shouldSkip("get") {
			return
		}
		s := newStore()
		b.Cleanup(func() { s.Close() })
		for i := 0; i < perfKeySpread; i++ {
			if err := s.Set(perfKey(i), value); err != nil {
				b.Errorf("(get) - error preparing key: %v", err)
			}
		}

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, _, err := s.Get(perfKey(counter)); err != nil {
					b.Errorf("(get) - error getting key: %v", err)
				}
				counter++
			}
		})
	}))

	record("has", testing.Benchmark(func(b *testing.B) {
		if shouldSkip("has") {
			return
		}
		s := newStore()
		b.Cleanup(func() { s.Close() })
		for i := 0; i < perfKeySpread; i++ {
			if err := s.Set(perfKey(i), value); err != nil {
				b.Errorf("(has) - error preparing key: %v", err)
			}
		}

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := s.Has(perfKey(counter)); err != nil {
					b.Errorf("(has) - error checking key: %v", err)
				}
				counter++
			}
		})
	}))

	record("delete", testing.Benchmark(func(b *testing.B) {
		if shouldSkip("delete") {
			return
		}
		s := newStore()
		b.Cleanup(func() { s.Close() })
		for i := 0; i < perfKeySpread; i++ {
			if err := s.Set(perfKey(i), value); err != nil {
				b.Errorf("(delete) - error preparing key: %v", err)
			}
		}

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := s.Delete(perfKey(counter)); err != nil {
					b.Errorf("(delete) - error deleting key: %v", err)
				}
				counter++
			}
		})
	}))

	record("random", testing.Benchmark(func(b *testing.B) {
		if shouldSkip("random") {
			return
		}
		s := newStore()
		b.Cleanup(func() { s.Close() })
		for i := 0; i < perfKeySpread; i++ {
			if err := s.Set(perfKey(i), value); err != nil {
				b.Errorf("(random) - error preparing key: %v", err)
			}
		}

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				if _, _, err := s.RandomKey(); err != nil {
					b.Errorf("(random) - error sampling key: %v", err)
				}
			}
		})
	}))

	record("mixed", testing.Benchmark(func(b *testing.B) {
		if shouldSkip("mixed") {
			return
		}
		s := newStore()
		b.Cleanup(func() { s.Close() })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				key := perfKey(counter)
				var err error
				switch counter % 4 {
				case 0: // set
					err = s.Set(key, value)
				case 1: // get
					_, _, err = s.Get(key)
				case 2: // delete
					_, err = s.Delete(key)
				case 3: // has
					_, err = s.Has(key)
				}
				if err != nil {
					b.Errorf("(mixed) - error performing operation (%d): %v", counter%4, err)
				}
				counter++
			}
		})
	}))

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// perfKey returns a test key by index (with wraparound over the key spread)
func perfKey(i int) string {
	return fmt.Sprintf("__perf-key-%d", i%perfKeySpread)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Threads", "ValueSizeKB", "KeysCount", "Presize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfValueSizeKB),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfPresize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
