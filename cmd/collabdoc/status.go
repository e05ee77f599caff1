// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

const statusTimeout = 2 * time.Second

// ProcessStatus holds the status information for one endpoint of the server.
type ProcessStatus struct {
	Component     string `json:"component"`
	URL           string `json:"url"`
	Running       bool   `json:"running"`
	Health        string `json:"health,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds,omitempty"`
	Error         string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	apiURL     string
	metricsURL string
	client     *http.Client
}

// newStatusCmd creates the status subcommand with all flags configured.
func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running collabdoc server",
		Long: `Query the API health endpoint and the observability readiness probe
of a running server. Addresses default to the configured listeners.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().StringVar(&cfg.apiURL, "api-url", "", "API base URL (default: from server.listen)")
	cmd.Flags().StringVar(&cfg.metricsURL, "metrics-url", "", "observability base URL (default: from server.metrics_addr)")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	if cfg.apiURL == "" || cfg.metricsURL == "" {
		loaded, err := loadConfig(cmd.Flags())
		if err != nil {
			return oops.With("operation", "load configuration").Wrap(err)
		}
		if cfg.apiURL == "" {
			cfg.apiURL = baseURL(loaded.Server.Listen)
		}
		if cfg.metricsURL == "" && loaded.Server.MetricsAddr != "" {
			cfg.metricsURL = baseURL(loaded.Server.MetricsAddr)
		}
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: statusTimeout}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	statuses := []ProcessStatus{queryAPIStatus(ctx, client, cfg.apiURL)}
	if cfg.metricsURL != "" {
		statuses = append(statuses, queryReadiness(ctx, client, cfg.metricsURL))
	}

	if cfg.jsonOutput {
		output, err := formatStatusJSON(statuses)
		if err != nil {
			return err
		}
		cmd.Println(output)
		return nil
	}

	cmd.Println(formatStatusTable(statuses))
	return nil
}

// baseURL turns a listen address into a loopback URL.
func baseURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// queryAPIStatus reads GET /health from the API listener.
func queryAPIStatus(ctx context.Context, client *http.Client, base string) ProcessStatus {
	status := ProcessStatus{Component: "api", URL: base}

	body, code, err := get(ctx, client, base+"/health")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	if code != http.StatusOK {
		status.Error = fmt.Sprintf("unexpected status %d", code)
		return status
	}

	var health struct {
		Status string  `json:"status"`
		Uptime float64 `json:"uptime"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		status.Error = fmt.Sprintf("failed to decode health response: %v", err)
		return status
	}

	status.Running = true
	status.Health = health.Status
	status.UptimeSeconds = int64(health.Uptime)
	return status
}

// queryReadiness reads the observability readiness probe.
func queryReadiness(ctx context.Context, client *http.Client, base string) ProcessStatus {
	status := ProcessStatus{Component: "metrics", URL: base}

	body, code, err := get(ctx, client, base+"/healthz/readiness")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}

	status.Running = true
	status.Health = string(bytes.TrimSpace(body))
	if code != http.StatusOK && status.Health == "" {
		status.Health = "not ready"
	}
	return status
}

func get(ctx context.Context, client *http.Client, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, 0, oops.With("url", url).Wrap(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, oops.With("url", url).Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, 0, oops.With("url", url).Wrap(err)
	}
	return body, resp.StatusCode, nil
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(statuses []ProcessStatus) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tHEALTH\tUPTIME\tURL")
	_, _ = fmt.Fprintln(w, "---------\t------\t------\t------\t---")

	for _, status := range statuses {
		if status.Running {
			uptime := "-"
			if status.Component == "api" {
				uptime = formatUptime(status.UptimeSeconds)
			}
			_, _ = fmt.Fprintf(w, "%s\trunning\t%s\t%s\t%s\n",
				status.Component, status.Health, uptime, status.URL)
		} else {
			reason := "not running"
			if status.Error != "" {
				reason = status.Error
			}
			_, _ = fmt.Fprintf(w, "%s\tstopped\t-\t-\t%s (%s)\n", status.Component, status.URL, reason)
		}
	}

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(statuses []ProcessStatus) (string, error) {
	data, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return "", oops.With("operation", "marshal status").Wrap(err)
	}
	return string(data), nil
}

// formatUptime formats seconds into a human-readable duration.
func formatUptime(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
