package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dhawalhost/riskregister/pkg/client"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultBaseURL = "http://localhost:8080"

type options struct {
	baseURL string
	token   string
	userID  string
	output  string
	timeout time.Duration
}

func (o *options) client() *client.Client {
	return client.New(client.Config{
		BaseURL: o.baseURL,
		Token:   o.token,
		UserID:  o.userID,
		Timeout: o.timeout,
	})
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "riskctl",
		Short: "Command-line client for the risk register",
		Long: `riskctl talks to a running risksvc.

The caller is identified by --token (a bearer token whose subject is the
user id) or by --user when the service trusts the X-User-ID header.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", envOr("RISKCTL_BASE_URL", defaultBaseURL), "Service base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("RISKCTL_TOKEN"), "Bearer token")
	root.PersistentFlags().StringVar(&opts.userID, "user", os.Getenv("RISKCTL_USER"), "User id sent as X-User-ID")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format: table, json, yaml")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	root.AddCommand(
		newWhoamiCmd(opts),
		newUserCmd(opts),
		newRiskCmd(opts),
		newDepartmentCmd(opts),
		newAuditCmd(opts),
		newDashboardCmd(opts),
	)
	return root
}

// render writes data as JSON or YAML, or calls table for the default format.
func render(w io.Writer, format string, data interface{}, table func(tw *tabwriter.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "yaml":
		// Go through JSON so keys match the API field names.
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	case "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitAndClean(values string) []string {
	var cleaned []string
	for _, part := range strings.Split(values, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
