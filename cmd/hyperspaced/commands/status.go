package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperspacedb/hyperspace/internal/httpapi"
	"github.com/hyperspacedb/hyperspace/pkg/config"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running master's status API",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", config.DefaultAPIListen, "status API address")
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://" + statusAddr + "/v1/status")
	if err != nil {
		return fmt.Errorf("failed to reach status API at %s: %w", statusAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status API returned %s", resp.Status)
	}

	var status httpapi.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode status response: %w", err)
	}

	fmt.Printf("Instance:   %s\n", status.InstanceID)
	fmt.Printf("Generation: %d\n", status.Generation)
	fmt.Printf("Uptime:     %s\n", (time.Duration(status.UptimeSecs) * time.Second).String())
	fmt.Printf("Sessions:   %d\n", status.Sessions)
	fmt.Printf("Nodes:      %d\n", status.Nodes)
	fmt.Printf("Handles:    %d\n", status.Handles)
	return nil
}
