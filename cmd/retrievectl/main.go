// Package main implements the retrievectl CLI for manual operations
// against a running retrieverd server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the retrieverd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "retrievectl",
	Short: "CLI for retrieverd HTTP server operations",
	Long: `retrievectl is a command-line interface for interacting with a
retrieverd server. It provides commands for ingesting documents, asking
questions, and checking server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "retrieverd server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(deleteTenantCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check retrieverd server health",
	RunE:  runHealth,
}

// ingestCmd uploads documents from a JSON file or stdin
var ingestCmd = &cobra.Command{
	Use:   "ingest <tenant> [file]",
	Short: "Ingest documents for a tenant from a JSON file or stdin",
	Long: `Ingest documents for a tenant. The input must be a JSON array of
documents or an object with a "documents" array.

Examples:
  # Ingest from a file
  retrievectl ingest acme faqs.json

  # Ingest from stdin
  cat faqs.json | retrievectl ingest acme -`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runIngest,
}

// queryCmd asks a question
var queryCmd = &cobra.Command{
	Use:   "query <tenant> <question>",
	Short: "Ask a question against a tenant's documents",
	Args:  cobra.ExactArgs(2),
	RunE:  runQuery,
}

// deleteTenantCmd removes a tenant's store
var deleteTenantCmd = &cobra.Command{
	Use:   "delete-tenant <tenant>",
	Short: "Delete all documents and cached answers for a tenant",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteTenant,
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

func runHealth(cmd *cobra.Command, args []string) error {
	resp, err := httpClient().Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: %s", resp.Status)
	}
	fmt.Println("ok")
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	tenant := args[0]

	var input io.Reader = os.Stdin
	if len(args) == 2 && args[1] != "-" {
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		input = f
	}

	raw, err := io.ReadAll(input)
	if err != nil {
		return err
	}

	// Accept either a bare array or the request envelope.
	body := raw
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		envelope, err := json.Marshal(map[string]json.RawMessage{"documents": raw})
		if err != nil {
			return err
		}
		body = envelope
	}

	url := fmt.Sprintf("%s/api/v1/tenants/%s/documents", serverURL, tenant)
	resp, err := httpClient().Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ingest request failed: %w", err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ingest failed (%s): %s", resp.Status, bytes.TrimSpace(out))
	}
	fmt.Println(string(bytes.TrimSpace(out)))
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	tenant, question := args[0], args[1]

	body, err := json.Marshal(map[string]string{"query": question})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/tenants/%s/query", serverURL, tenant)
	resp, err := httpClient().Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("query request failed: %w", err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query failed (%s): %s", resp.Status, bytes.TrimSpace(out))
	}

	var result struct {
		Answer   string `json:"answer"`
		Strategy string `json:"strategy"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	fmt.Println(result.Answer)
	fmt.Fprintf(os.Stderr, "(strategy: %s)\n", result.Strategy)
	return nil
}

func runDeleteTenant(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/api/v1/tenants/%s", serverURL, args[0])
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	resp, err := httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		out, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete failed (%s): %s", resp.Status, bytes.TrimSpace(out))
	}
	fmt.Println("deleted")
	return nil
}
