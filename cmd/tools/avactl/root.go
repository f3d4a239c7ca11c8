package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/helpbyexperts/ava/backend/internal/logging"
)

var (
	serverURL  string
	agentToken string
	logLevel   string

	log *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "avactl",
		Short: "Operate an Ava triage backend",
		Long:  "avactl talks to a running Ava backend as a customer or as an expert, and reads archived transcripts.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			if agentToken == "" {
				agentToken = os.Getenv("AGENT_TOKEN")
			}
			level := logLevel
			if level == "" {
				level = "warn"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:10000", "backend base URL")
	cmd.PersistentFlags().StringVar(&agentToken, "token", "", "agent bearer token (default $AGENT_TOKEN)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newTranscriptCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newMarkPaidCmd())
	cmd.AddCommand(newReplyCmd())

	return cmd
}
