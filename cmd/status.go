package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/bnema/editor-relay/internal/adapters/httpapi"
	statusadapter "github.com/bnema/editor-relay/internal/adapters/render/status"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show session and waiter counts of a running relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				payload, err := json.MarshalIndent(httpapi.HealthFromStats(stats), "", "  ")
				if err != nil {
					return fmt.Errorf("encode status json: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(payload))
				return err
			}

			output, err := a.statusRenderer(stats, statusadapter.RenderOptions{Endpoint: a.cfg.Client.BaseURL})
			if err != nil {
				return fmt.Errorf("render status: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), output)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}
