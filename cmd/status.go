package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/statforge/pairtrader/internal/api"
	"github.com/statforge/pairtrader/pkg/formatters"
)

func init() {
	statusCmd.Flags().String("api", "", "control API address (default from API_LISTEN_ADDR)")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a running trader's status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	var status api.StatusResponse
	if err := apiGet(apiBaseURL(cmd), "/api/v1/status", &status); err != nil {
		return err
	}
	fmt.Println(formatters.FormatStatusReport(&status))
	return nil
}
