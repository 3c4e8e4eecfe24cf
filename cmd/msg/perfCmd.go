package msg

import (
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/solo/cmd/util"
	"github.com/ValentinKolb/solo/lib/identity"
	"github.com/ValentinKolb/solo/rpc/client"
	"github.com/ValentinKolb/solo/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for a running primary",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfSkip             = make([]string, 0)
	perfTests            = []string{"send", "send-large", "announce", "pid", "user", "connect"}
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. send,pid)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of parallel secondaries to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the message for the send-large test should be (in KB, at most 1024)"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfLargeValueSizeKB*1024 > common.MaxContentSize {
		return fmt.Errorf("large-value-size must be at most %d KB", common.MaxContentSize/1024)
	}
	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	defer rpcClient.Close()
	config := util.GetInstanceConfig()

	fmt.Println("Performance testing tool for solo primaries")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	// fail early if nobody is listening
	if _, err := rpcClient.PrimaryPid(0); err != nil {
		return fmt.Errorf("no primary reachable on %s: %w", config.Endpoint, err)
	}

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	largeValue := make([]byte, perfLargeValueSizeKB*1024)

	benchmarks := map[string]func(c *client.RPCInstanceClient) error{
		"send": func(c *client.RPCInstanceClient) error {
			return c.SendMessage([]byte("test"), 0)
		},
		"send-large": func(c *client.RPCInstanceClient) error {
			return c.SendMessage(largeValue, 0)
		},
		"announce": func(c *client.RPCInstanceClient) error {
			return c.Announce(nil, 0)
		},
		"pid": func(c *client.RPCInstanceClient) error {
			_, err := c.PrimaryPid(0)
			return err
		},
		"user": func(c *client.RPCInstanceClient) error {
			_, err := c.PrimaryUser(0)
			return err
		},
	}

	for _, test := range perfTests {
		var result testing.BenchmarkResult
		if test == "connect" {
			result = benchmarkConnect(config)
		} else {
			result = benchmarkRequests(test, config, benchmarks[test])
		}
		results[test] = result
		printResult(test, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, config); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// benchmarkRequests runs request against the primary with one connected client per goroutine
func benchmarkRequests(test string, config common.InstanceConfig, request func(c *client.RPCInstanceClient) error) testing.BenchmarkResult {
	return testing.Benchmark(func(b *testing.B) {
		if shouldSkip(test) {
			return
		}

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			c := client.NewRPCInstanceClient(config, util.GetTransport(), identity.NewInstanceID())
			defer c.Close()

			for pb.Next() {
				if err := request(c); err != nil {
					log.Printf("(%s) - error: %v\n", test, err)
				}
			}
		})
	})
}

// benchmarkConnect measures a full secondary life cycle: connect, announce and close
func benchmarkConnect(config common.InstanceConfig) testing.BenchmarkResult {
	return testing.Benchmark(func(b *testing.B) {
		if shouldSkip("connect") {
			return
		}

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				c := client.NewRPCInstanceClient(config, util.GetTransport(), identity.NewInstanceID())
				if err := c.Announce(nil, 0); err != nil {
					log.Printf("(connect) - error: %v\n", err)
				}
				_ = c.Close()
			}
		})
	})
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

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config common.InstanceConfig) error {
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
		"Endpoint", "Timeout", "QueryTimeout", "PollInterval",
		"Threads", "LargeValueSizeKB",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results in execution order
	for _, test := range perfTests {
		result, ok := results[test]
		if !ok {
			continue
		}

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
			config.Endpoint,
			config.Timeout.String(),
			config.QueryTimeout.String(),
			config.PollInterval.String(),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
