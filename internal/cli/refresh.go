package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Trigger a snapshot refresh on the server",
	Long: `Ask the dashboard server to rebuild its snapshot now.

The server re-polls every oracle, so with the one-per-second pacing
this can take a minute or two.`,
	RunE: runRefresh,
}

var refreshServer string

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().StringVar(&refreshServer, "server", "http://localhost:8080", "Dashboard server base URL")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 3 * time.Minute}
	url := strings.TrimRight(refreshServer, "/") + "/api/refresh"

	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh failed: %s (%s)", resp.Status, body["error"])
	}

	fmt.Printf("refresh %s complete: snapshot %s in %s\n",
		body["refresh_id"], body["cache_date"], body["duration"])
	return nil
}
