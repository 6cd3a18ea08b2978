// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keymaster.
//
// go-keymaster is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keymaster/pkg/client"
)

// ErrUnhealthy is returned by the health command when the server answers
// but reports a failed check.
var ErrUnhealthy = errors.New("server is unhealthy")

func (a *app) healthCommand() *cobra.Command {
	var server, apiKey, caFile string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running keymaster server's readiness",
		Long: `Query the readiness probe of a running server. --server accepts
http://, https://, unix:// and quic:// URLs. Exits non-zero unless the
server is healthy or degraded, so it can back a container health check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if apiKey == "" {
				apiKey = os.Getenv("KEYMASTER_API_KEY")
			}
			c, err := client.NewFromURL(server)
			if err != nil {
				return err
			}
			if apiKey != "" || caFile != "" {
				cfg := c.Config()
				cfg.APIKey, cfg.TLSCAFile = apiKey, caFile
				if c, err = client.New(&cfg); err != nil {
					return err
				}
			}
			defer c.Close()

			h, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			if perr := a.printer(cmd).Print(h, func(w io.Writer) {
				fmt.Fprintf(w, "%s\n", h.Status)
				for _, check := range h.Checks {
					line := fmt.Sprintf("  %-10s %s", check.Name, check.Status)
					if check.Error != "" {
						line += ": " + check.Error
					}
					fmt.Fprintln(w, line)
				}
			}); perr != nil {
				return perr
			}
			if h.Status == "unhealthy" {
				return ErrUnhealthy
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "server URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (default: $KEYMASTER_API_KEY)")
	cmd.Flags().StringVar(&caFile, "ca-file", "", "CA bundle for https and quic servers")
	return cmd
}
