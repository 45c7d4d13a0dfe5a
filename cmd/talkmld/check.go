package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"talkml/agent/internal/health"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration and script backend reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		st := health.CheckAll(ctx, cfg)
		fmt.Fprint(cmd.OutOrStdout(), st.String())
		if !st.OK {
			return errors.New("health check failed")
		}
		return nil
	},
}
