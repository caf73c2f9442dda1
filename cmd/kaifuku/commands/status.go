package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shizukutanaka/Kaifuku/internal/engine"
	"github.com/shizukutanaka/Kaifuku/internal/health"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system health status",
	Long:  `Display component health, open issues, and recent repairs from a running engine.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().String("format", "table", "Output format (table, json, yaml)")
	statusCmd.Flags().Bool("watch", false, "Refresh continuously")
	statusCmd.Flags().Duration("interval", 5*time.Second, "Watch interval")
}

func runStatus(cmd *cobra.Command, args []string) error {
	apiURL, _ := cmd.Flags().GetString("api-url")
	format, _ := cmd.Flags().GetString("format")
	watch, _ := cmd.Flags().GetBool("watch")
	interval, _ := cmd.Flags().GetDuration("interval")

	if watch {
		for {
			fmt.Print("\033[H\033[2J")
			if err := displayStatus(apiURL, format); err != nil {
				return err
			}
			time.Sleep(interval)
		}
	}

	return displayStatus(apiURL, format)
}

func displayStatus(apiURL, format string) error {
	view, err := fetchSystemHealth(apiURL)
	if err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(view)
	default:
		displayTable(view)
		return nil
	}
}

func fetchSystemHealth(apiURL string) (*engine.SystemHealth, error) {
	resp, err := http.Get(apiURL + "/api/v1/system")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var view engine.SystemHealth
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, err
	}
	return &view, nil
}

func displayTable(view *engine.SystemHealth) {
	fmt.Printf("Overall: %s    Phase: %s    Monitoring: %v\n\n",
		view.Overall, view.Phase, view.Active)

	fmt.Printf("%-14s %-10s %-12s %-11s %s\n",
		"COMPONENT", "SCORE", "STATE", "TREND", "LAST CHECK")
	for _, component := range health.Components() {
		status, ok := view.Components[component]
		if !ok {
			continue
		}
		lastCheck := "never"
		if !status.LastCheck.IsZero() {
			lastCheck = humanize.Time(status.LastCheck)
		}
		fmt.Printf("%-14s %-10.1f %-12s %-11s %s\n",
			component, status.Performance, status.State, status.Trend, lastCheck)
	}

	if len(view.Issues) > 0 {
		fmt.Printf("\nOpen issues:\n")
		for _, issue := range view.Issues {
			fmt.Printf("  [%s] %s (seen %s, recurrence %d)\n",
				issue.Severity, issue.Description, humanize.Time(issue.FirstSeen), issue.Recurrence)
		}
	}

	if len(view.FixLog) > 0 {
		fmt.Printf("\nRecent repairs:\n")
		shown := view.FixLog
		if len(shown) > 5 {
			shown = shown[len(shown)-5:]
		}
		for _, fix := range shown {
			outcome := "ok"
			if !fix.Success {
				outcome = "failed"
			}
			fmt.Printf("  %s  %-20s %-8s trigger=%s\n",
				humanize.Time(fix.Timestamp), fix.Repair, outcome, fix.Trigger)
		}
	}

	fmt.Printf("\nLearning: %d fixes, %.0f%% success\n",
		view.Learning.TotalFixes, view.Learning.SuccessRate*100)
}
