package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/seqcast/api"
	"github.com/adamgarcia4/goLearning/seqcast/logger"
	"github.com/adamgarcia4/goLearning/seqcast/node"
)

var (
	address          string
	port             string
	nodeID           string
	isSequencer      bool
	sequencerAddr    string
	peers            []string
	relayAddr        string
	adminAddr        string
	transportKind    string
	metricsPath      string
	snapshotInterval time.Duration
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a multicast node",
	Long: `Start one node of the group.

The node's role and address table come from the cluster file (or the built-in
five-node table); individual flags override it.

Examples:
  # Start the sequencer of the default cluster (127.0.0.1:8082)
  seqcast start --node-id=node-1

  # Start a member from a cluster file with its admin API
  seqcast start --cluster=cluster.yaml --node-id=node-3 --admin=127.0.0.1:9083

  # Fully manual
  seqcast start --node-id=solo --port=9000 --sequencer --relay=127.0.0.1:9001`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	// Server flags
	startCmd.Flags().StringVarP(&address, "address", "a", node.DefaultAddress, "Address to bind the server to")
	startCmd.Flags().StringVarP(&port, "port", "p", node.DefaultPort, "Port to bind the server to")
	startCmd.Flags().StringVarP(&nodeID, "node-id", "n", node.DefaultNodeID, "Unique node identifier")
	startCmd.Flags().StringVarP(&transportKind, "transport", "t", node.DefaultTransport, "Frame transport (tcp, grpc)")

	// Role and address table
	startCmd.Flags().BoolVar(&isSequencer, "sequencer", false, "Assign sequence numbers on this node")
	startCmd.Flags().StringVar(&sequencerAddr, "sequencer-addr", "", "Address of the sequencer node")
	startCmd.Flags().StringSliceVar(&peers, "peers", []string{}, "Broadcast targets (comma-separated)")
	startCmd.Flags().StringVarP(&relayAddr, "relay", "r", node.DefaultRelayAddr, "Ingress relay address")

	// Observability
	startCmd.Flags().StringVar(&adminAddr, "admin", "", "Serve the admin HTTP API on this address")
	startCmd.Flags().StringVar(&metricsPath, "metrics-file", "", "Write a JSON metrics snapshot to this file")
	startCmd.Flags().DurationVar(&snapshotInterval, "snapshot-interval", 0, "Interval between metrics snapshots (0 writes only on shutdown)")
}

// startConfig builds the node config from the cluster table and flags.
func startConfig(cmd *cobra.Command) (*node.Config, error) {
	cluster, err := loadCluster()
	if err != nil {
		return nil, err
	}

	config, err := cluster.NodeConfig(nodeID)
	if err != nil && !errors.Is(err, node.ErrUnknownNode) {
		return nil, err
	}
	if config == nil {
		// not in the table: start from defaults and rely on flags
		config = node.DefaultConfig(nodeID)
	}

	flags := cmd.Flags()
	if flags.Changed("address") {
		config.Address = address
	}
	if flags.Changed("port") {
		config.Port = port
	}
	if flags.Changed("transport") {
		config.Transport = transportKind
	}
	if flags.Changed("sequencer") {
		config.IsSequencer = isSequencer
	}
	if flags.Changed("sequencer-addr") {
		config.SequencerAddr = sequencerAddr
	}
	if flags.Changed("peers") {
		config.Peers = peers
	}
	if flags.Changed("relay") {
		config.RelayAddr = relayAddr
	}
	if flags.Changed("admin") {
		config.AdminAddr = adminAddr
	}
	config.MetricsPath = metricsPath
	config.SnapshotInterval = snapshotInterval
	return config, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	// Initialize logger for non-interactive mode (write to stdout)
	closeLog, err := initLogger(true)
	if err != nil {
		return err
	}
	defer closeLog()

	config, err := startConfig(cmd)
	if err != nil {
		return err
	}

	// Create and start the node
	n, err := node.New(config)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	if err := n.Start(); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	adminDone := make(chan error, 1)
	if config.AdminAddr != "" {
		go func() {
			adminDone <- api.Serve(ctx, config.AdminAddr, n)
		}()
		logger.Infof("admin API listening on %s", config.AdminAddr)
	}

	// Wait for interrupt signal for graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-adminDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("admin API stopped: %v", err)
		}
		<-ctx.Done()
	}

	logger.Info("Shutting down...")
	if err := n.Stop(); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	return nil
}
