package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/seqcast/logger"
	"github.com/adamgarcia4/goLearning/seqcast/node"
)

var (
	logLevel    string
	logFile     string
	clusterPath string
)

var rootCmd = &cobra.Command{
	Use:   "seqcast",
	Short: "Sequencer-ordered multicast",
	Long: `A small group communication system: every node delivers every submitted
message in the same total order, assigned by a single sequencer node.

Submissions are fanned out to all nodes by an ingress relay; the sequencer
numbers them and broadcasts the assignments; each node releases messages
strictly in sequence-number order.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also append logs to this file")
	rootCmd.PersistentFlags().StringVarP(&clusterPath, "cluster", "c", "", "YAML address table (defaults to the built-in five-node cluster)")
}

// initLogger sets up the global logger for a command. The returned func
// detaches and closes the --log-file output.
func initLogger(writeToStdout bool) (func(), error) {
	logger.Init("seqcast", writeToStdout)
	if err := logger.SetLevel(logLevel); err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	return attachLogFile()
}

func attachLogFile() (func(), error) {
	if logFile == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open --log-file: %w", err)
	}
	if err := logger.AddOutput(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() {
		_ = logger.RemoveOutput(f)
		_ = f.Close()
	}, nil
}

// loadCluster reads --cluster, falling back to the default table.
func loadCluster() (*node.ClusterConfig, error) {
	if clusterPath == "" {
		return node.DefaultCluster(), nil
	}
	return node.LoadCluster(clusterPath)
}
