package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/seqcast/logger"
	"github.com/adamgarcia4/goLearning/seqcast/relay"
)

var relayListen string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Start the ingress relay",
	Long: `Start the ingress relay, which forwards every submitted message to every
node of the cluster table.

Examples:
  seqcast relay
  seqcast relay --cluster=cluster.yaml`,
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.Flags().StringVarP(&relayListen, "listen", "l", "", "Listen address (defaults to the cluster's relay address)")
}

func runRelay(cmd *cobra.Command, args []string) error {
	closeLog, err := initLogger(true)
	if err != nil {
		return err
	}
	defer closeLog()

	cluster, err := loadCluster()
	if err != nil {
		return err
	}
	addr := cluster.Relay
	if relayListen != "" {
		addr = relayListen
	}

	r, err := relay.New(relay.Config{
		Addr:        addr,
		Targets:     cluster.Addresses(),
		Transport:   cluster.Transport,
		DialTimeout: cluster.DialTimeout,
	})
	if err != nil {
		return err
	}
	if err := r.Start(); err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	logger.Info("Shutting down...")
	forwarded, failures := r.Stats()
	logger.Infof("relay forwarded %d frames, %d failed", forwarded, failures)
	return r.Stop()
}
