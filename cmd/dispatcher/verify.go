package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ignite/campaign-dispatch/internal/app"
)

func newVerifyCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the configured transport accepts our credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			svc, err := app.New(cmd.Context(), cfg, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer svc.Close()

			id, err := svc.Verify(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s ready to send as %s\n", svc.Provider(), id.Address)
			return nil
		},
	}
}
