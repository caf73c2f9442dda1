package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/shizukutanaka/Kaifuku/internal/engine"
)

var repairCmd = &cobra.Command{
	Use:   "repair [action]",
	Short: "Run a repair cycle or a single named repair",
	Long: `Without arguments, triggers a full auto-repair cycle: diagnostics,
repair selection, execution, and verification. With an action name,
applies just that repair.

Examples:
  # Full cycle
  kaifuku repair

  # Single action
  kaifuku repair optimize_memory`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRepair,
}

func init() {
	rootCmd.AddCommand(repairCmd)
}

func runRepair(cmd *cobra.Command, args []string) error {
	apiURL, _ := cmd.Flags().GetString("api-url")

	if len(args) == 1 {
		return applyNamedFix(apiURL, args[0])
	}
	return runRepairCycle(apiURL)
}

func runRepairCycle(apiURL string) error {
	resp, err := http.Post(apiURL+"/api/v1/repair", "application/json", bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("failed to trigger repair cycle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("a repair cycle is already in progress")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var report engine.CycleReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return err
	}

	fmt.Printf("Cycle %s: %d diagnostics, %d failures\n",
		report.ID, report.DiagnosticsRun, len(report.Failures))
	for _, fix := range report.Fixes {
		outcome := "ok"
		if !fix.Success {
			outcome = "failed"
		}
		fmt.Printf("  %-20s %-8s trigger=%s (%s)\n",
			fix.Repair, outcome, fix.Trigger, fix.Duration)
	}
	if report.Fault != "" {
		fmt.Printf("Fault: %s\n", report.Fault)
	}
	fmt.Printf("Verified: %v\n", report.Verified)
	return nil
}

func applyNamedFix(apiURL, name string) error {
	resp, err := http.Post(apiURL+"/api/v1/repair/"+name, "application/json", bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("failed to apply repair: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var fix engine.AutoFix
	if err := json.NewDecoder(resp.Body).Decode(&fix); err != nil {
		return err
	}

	if !fix.Success {
		return fmt.Errorf("repair %s did not succeed", name)
	}
	fmt.Printf("Applied %s (%s)\n", fix.Repair, fix.Duration)
	return nil
}
