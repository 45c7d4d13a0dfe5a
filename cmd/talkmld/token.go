package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"talkml/agent/internal/auth"
)

var (
	tokenSession string
	tokenTTL     time.Duration
)

// tokenCmd mints the bearer token a speech worker presents on /ws/worker.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a speech worker token for a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenSession == "" {
			return errors.New("--session is required")
		}
		s := auth.NewSigner(cfg.Worker.TokenSecret, time.Duration(cfg.Worker.TokenSkewSecs)*time.Second)
		tok, err := s.Issue(tokenSession, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSession, "session", "", "session id the worker will attach to")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "token lifetime")
}
