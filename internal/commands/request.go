package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loftwing/relay/pkg/transport"
)

func newRequestCommand() *cobra.Command {
	var (
		data     string
		headers  []string
		dedupKey string
	)

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Issue an HTTP request through the resilience pipeline",
		Long: `Issue a single HTTP request. PATH is resolved against the configured
base URL; an absolute URL is used as-is. Transient failures are retried
with exponential backoff, and a 401 triggers a coordinated token refresh
when refresh is configured.`,
		Example: `  relay request GET /v1/users
  relay request POST /v1/users --data '{"name":"ada"}'
  relay request GET https://api.example.com/health --header 'Accept: application/json'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := strings.ToUpper(args[0])
			path := args[1]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var baseURL string
			if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
				baseURL = path
			}
			client, err := buildClient(cfg, baseURL)
			if err != nil {
				return err
			}

			req := &transport.Request{
				Method:   method,
				Path:     path,
				DedupKey: dedupKey,
			}
			if data != "" {
				req.Body = []byte(data)
			}
			for _, h := range headers {
				name, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("invalid header %q, expected 'Name: value'", h)
				}
				req.SetHeader(strings.TrimSpace(name), strings.TrimSpace(value))
			}

			resp, err := client.Do(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(resp.Body))
			return nil
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "request body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "request header ('Name: value', repeatable)")
	cmd.Flags().StringVar(&dedupKey, "dedup-key", "", "override the deduplication key (default: request path)")

	return cmd
}
