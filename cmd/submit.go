package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/seqcast/api"
)

var (
	submitAdmin  string
	submitNodeID string
)

var submitCmd = &cobra.Command{
	Use:   "submit [text]",
	Short: "Submit a message through a node's admin API",
	Long: `Submit a message through a running node. The node formats it as its next
message and hands it to the ingress relay.

Examples:
  seqcast submit --node-id=node-2 "hello"
  seqcast submit --admin=127.0.0.1:9083 "hello"`,
	Args: cobra.ArbitraryArgs,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVar(&submitAdmin, "admin", "", "Admin API address of the submitting node")
	submitCmd.Flags().StringVarP(&submitNodeID, "node-id", "n", "", "Look up the admin address of this node in the cluster table")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	addr := submitAdmin
	if addr == "" {
		if submitNodeID == "" {
			return fmt.Errorf("either --admin or --node-id is required")
		}
		cluster, err := loadCluster()
		if err != nil {
			return err
		}
		entry, err := cluster.Entry(submitNodeID)
		if err != nil {
			return err
		}
		if entry.Admin == "" {
			return fmt.Errorf("node %s has no admin address in the cluster table", submitNodeID)
		}
		addr = entry.Admin
	}

	body, err := json.Marshal(api.SubmitRequest{Text: strings.Join(args, " ")})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post("http://"+addr+"/messages", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("submit failed (%s): %s", resp.Status, e.Error)
	}

	var out api.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.Payload)
	return nil
}
