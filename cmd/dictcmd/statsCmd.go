package dictcmd

import (
	"fmt"
	"os"
	"time"

	"github.com/ValentinKolb/iDict/cmd/util"
	"github.com/ValentinKolb/iDict/lib/store/hstore"
	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	statsCmd = &cobra.Command{
		Use:     "stats",
		Short:   "Fill a dict-backed store and print its hash table statistics",
		Long:    "Loads the given number of keys into a fresh hstore, optionally drains pending rehashes, and prints the chain-length histogram plus store metadata.",
		RunE:    runStats,
		PreRunE: processStatsConfig,
	}
	statsNumKeys     = 100_000
	statsValueSize   = 64
	statsDrainRehash = true
	statsPrometheus  = false
)

func init() {
	key := "keys"
	statsCmd.Flags().Int(key, 100_000, util.WrapString("How many keys to load before printing statistics"))
	key = "value-size"
	statsCmd.Flags().Int(key, 64, util.WrapString("Size of the values to store (in bytes)"))
	key = "drain-rehash"
	statsCmd.Flags().Bool(key, true, util.WrapString("Drain pending incremental rehashes before printing"))
	key = "prometheus"
	statsCmd.Flags().Bool(key, false, util.WrapString("Also dump the store's metrics in Prometheus text format"))
}

func processStatsConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	statsNumKeys = viper.GetInt("keys")
	statsValueSize = viper.GetInt("value-size")
	statsDrainRehash = viper.GetBool("drain-rehash")
	statsPrometheus = viper.GetBool("prometheus")

	return nil
}

func runStats(_ *cobra.Command, _ []string) error {
	set := metrics.NewSet()
	s := hstore.NewHashStore(&hstore.StoreOptions{Metrics: set})
	defer s.Close()

	fmt.Printf("Loading %d keys (%d byte values)...\n", statsNumKeys, statsValueSize)
	value := make([]byte, statsValueSize)
	start := time.Now()
	for i := 0; i < statsNumKeys; i++ {
		if err := s.Set(fmt.Sprintf("stats-key-%d", i), value); err != nil {
			return err
		}
	}
	fmt.Printf("Loaded in %s\n\n", time.Since(start))

	if statsDrainRehash {
		for {
			steps, err := s.RehashMaintenance(time.Millisecond)
			if err != nil {
				return err
			}
			if steps == 0 {
				break
			}
		}
	}

	info, err := s.GetStoreInfo()
	if err != nil {
		return err
	}

	fmt.Printf("Keys:               %d\n", info.Len)
	fmt.Printf("Buckets:            %d\n", info.Buckets)
	fmt.Printf("Rehashing:          %t\n", info.Rehashing)
	fmt.Printf("Table mem usage:    %d bytes\n", info.MemUsageBytes)
	fmt.Printf("Est. value size:    %d bytes\n", info.ValueSizeBytes)
	fmt.Println()

	stats := info.TableStats
	fmt.Println(stats.Message(true))

	if statsPrometheus {
		fmt.Println("Metrics:")
		set.WritePrometheus(os.Stdout)
	}

	return nil
}
