package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mon-metrics/incentive-dashboard/internal/cache"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Show the snapshot the server is serving",
	RunE:  runSnapshot,
}

var snapshotServer string

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().StringVar(&snapshotServer, "server", "http://localhost:8080", "Dashboard server base URL")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 15 * time.Second}
	url := strings.TrimRight(snapshotServer, "/") + "/api/dashboard"

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		var body map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("snapshot not ready, expected date %s", body["expected_date"])
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var snap cache.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	fmt.Printf("snapshot %s covering %s to %s (MON $%.4f, factor %.4f)\n",
		snap.CacheDate, snap.StartDate, snap.EndDate, snap.MonPrice, snap.AdjustmentFactor)
	if snap.AIAnalysis != nil && snap.AIAnalysis.Summary != "" {
		fmt.Printf("analysis: %s\n", snap.AIAnalysis.Summary)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("protocol", "incentive MON", "tvl USD", "volume USD")
	for _, p := range snap.Protocols {
		key := strings.ToLower(p)
		table.Append(p,
			fmt.Sprintf("%.2f", protocolMON(snap.Results[p])),
			fmtUSD(snap.ProtocolTVL[key]),
			fmtUSD(snap.ProtocolDEXVolume[key].Preferred()),
		)
	}
	table.Render()
	return nil
}

func protocolMON(byFunding map[string]map[string]float64) float64 {
	var total float64
	for _, markets := range byFunding {
		for _, mon := range markets {
			total += mon
		}
	}
	return total
}

func fmtUSD(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f", *v)
}
