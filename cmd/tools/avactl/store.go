package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/helpbyexperts/ava/backend/internal/config"
	"github.com/helpbyexperts/ava/backend/internal/model/chat"
	"github.com/helpbyexperts/ava/backend/internal/store"
)

func openStore(cmd *cobra.Command) (store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.Store.Driver == config.DriverMemory {
		return nil, fmt.Errorf("STORE_DRIVER=memory keeps nothing to read back")
	}
	return store.Open(cmd.Context(), cfg.Store, log)
}

func newTranscriptCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "transcript <session-id>",
		Short: "Print an archived transcript from the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			session, err := st.LoadSession(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("loading %s: %w", args[0], err)
			}
			if asJSON {
				return printJSON(session)
			}
			fmt.Print(renderTranscript(session))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw record")
	return cmd
}

func newSessionsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recently archived sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			lister, ok := st.(store.Lister)
			if !ok {
				return fmt.Errorf("the configured store cannot enumerate sessions")
			}
			summaries, err := lister.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tTURNS\tPAID\tCATEGORY\tUPDATED")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%d\t%t\t%s\t%s\n", s.ID, s.Turns, s.Paid, s.Category, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of sessions")
	return cmd
}

func renderTranscript(session chat.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s  paid=%t  questions=%d", session.ID, session.Paid, session.CountBySender(chat.SenderAssistant))
	if session.Category != "" {
		fmt.Fprintf(&b, "  category=%s", session.Category)
	}
	b.WriteString("\n")
	for _, turn := range session.Turns {
		fmt.Fprintf(&b, "%s  %-9s %s\n", turn.CreatedAt.Local().Format("15:04:05"), turn.Sender, turn.Text)
	}
	return b.String()
}
