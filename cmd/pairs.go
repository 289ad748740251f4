package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/statforge/pairtrader/internal/api"
	"github.com/statforge/pairtrader/internal/pairs"
	"github.com/statforge/pairtrader/pkg/formatters"
)

func init() {
	pairsCmd.AddCommand(pairsListCmd)
	pairsCmd.AddCommand(pairsShowCmd)
	pairsCmd.AddCommand(pairsAddCmd)
	pairsCmd.AddCommand(pairsRemoveCmd)
	pairsCmd.AddCommand(pairsReanalyzeCmd)

	pairsCmd.PersistentFlags().String("api", "", "control API address (default from API_LISTEN_ADDR)")
	pairsListCmd.Flags().String("status", "", "filter by status (PENDING, ACTIVE, SUSPENDED, BROKEN)")

	rootCmd.AddCommand(pairsCmd)
}

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "Manage pairs on a running trader",
	Long: `Inspect and manage the pair book of a running trader through its
control API.`,
}

var pairsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all pairs",
	RunE:  runPairsList,
}

var pairsShowCmd = &cobra.Command{
	Use:   "show [pair-id]",
	Short: "Show one pair in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runPairsShow,
}

var pairsAddCmd = &cobra.Command{
	Use:   "add [symbol-a] [symbol-b]",
	Short: "Add a candidate pair",
	Args:  cobra.ExactArgs(2),
	RunE:  runPairsAdd,
}

var pairsRemoveCmd = &cobra.Command{
	Use:   "remove [pair-id]",
	Short: "Remove a pair",
	Args:  cobra.ExactArgs(1),
	RunE:  runPairsRemove,
}

var pairsReanalyzeCmd = &cobra.Command{
	Use:   "reanalyze",
	Short: "Revalidate every pair's statistics now",
	RunE:  runPairsReanalyze,
}

func runPairsList(cmd *cobra.Command, args []string) error {
	path := "/api/v1/pairs"
	if status, _ := cmd.Flags().GetString("status"); status != "" {
		path += "?status=" + url.QueryEscape(strings.ToUpper(status))
	}

	var list []*pairs.Pair
	if err := apiGet(apiBaseURL(cmd), path, &list); err != nil {
		return err
	}
	fmt.Println(formatters.FormatPairsTable(list))
	return nil
}

func runPairsShow(cmd *cobra.Command, args []string) error {
	var p pairs.Pair
	path := "/api/v1/pairs/" + url.PathEscape(args[0])
	if err := apiGet(apiBaseURL(cmd), path, &p); err != nil {
		return err
	}
	fmt.Println(formatters.FormatPairDetail(&p))
	return nil
}

func runPairsAdd(cmd *cobra.Command, args []string) error {
	req := api.AddPairRequest{
		SymbolA: strings.ToUpper(args[0]),
		SymbolB: strings.ToUpper(args[1]),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	resp, err := apiHTTPClient().Post(apiBaseURL(cmd)+"/api/v1/pairs", "application/json", bytes.NewReader(body))
	if err != nil {
		return apiUnreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return apiError(resp)
	}
	var p pairs.Pair
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return err
	}
	fmt.Printf("✅ Pair %s added (%s)\n", p.ID, p.Status)
	return nil
}

func runPairsRemove(cmd *cobra.Command, args []string) error {
	req, err := http.NewRequest(http.MethodDelete,
		apiBaseURL(cmd)+"/api/v1/pairs/"+url.PathEscape(args[0]), nil)
	if err != nil {
		return err
	}
	resp, err := apiHTTPClient().Do(req)
	if err != nil {
		return apiUnreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return apiError(resp)
	}
	fmt.Printf("✅ Pair %s removed\n", args[0])
	return nil
}

func runPairsReanalyze(cmd *cobra.Command, args []string) error {
	resp, err := apiHTTPClient().Post(apiBaseURL(cmd)+"/api/v1/reanalyze", "application/json", nil)
	if err != nil {
		return apiUnreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	var result api.ReanalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	fmt.Printf("✅ Revalidated %d pairs\n", result.Reanalyzed)
	return nil
}

// apiBaseURL resolves the control API base URL from the --api flag or the
// configured listen address.
func apiBaseURL(cmd *cobra.Command) string {
	addr, _ := cmd.Flags().GetString("api")
	if addr == "" {
		addr = cfg.APIListenAddr
	}
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func apiHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func apiGet(base, path string, out interface{}) error {
	resp, err := apiHTTPClient().Get(base + path)
	if err != nil {
		return apiUnreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiUnreachable(err error) error {
	return fmt.Errorf("control API unreachable (is the trader running?): %w", err)
}

func apiError(resp *http.Response) error {
	var e struct {
		Error   string `json:"error"`
		Details string `json:"details,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
		if e.Details != "" {
			return fmt.Errorf("%s: %s", e.Error, e.Details)
		}
		return fmt.Errorf("%s", e.Error)
	}
	return fmt.Errorf("control API returned %s", resp.Status)
}
