package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/shizukutanaka/Kaifuku/internal/diagnostics"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Run the diagnostic suite",
	Long:  `Run every registered diagnostic on a running engine and print the results.`,
	RunE:  runDiagnose,
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	apiURL, _ := cmd.Flags().GetString("api-url")

	resp, err := http.Post(apiURL+"/api/v1/diagnostics", "application/json", bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("failed to run diagnostics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var body struct {
		Results []diagnostics.Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}

	failed := 0
	fmt.Printf("%-20s %-8s %-12s %s\n", "CHECK", "RESULT", "DURATION", "DETAIL")
	for _, result := range body.Results {
		outcome := "pass"
		if !result.Passed {
			outcome = "FAIL"
			failed++
		}
		fmt.Printf("%-20s %-8s %-12s %s\n",
			result.Name, outcome, result.Duration, result.Error)
	}

	fmt.Printf("\n%d checks, %d failed\n", len(body.Results), failed)
	if failed > 0 {
		return fmt.Errorf("%d diagnostic(s) failed", failed)
	}
	return nil
}
