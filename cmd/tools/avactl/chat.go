package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type wireMessage struct {
	Type      string  `json:"type"`
	SessionID string  `json:"sessionId,omitempty"`
	Message   string  `json:"message,omitempty"`
	Data      any     `json:"data,omitempty"`
	Status    string  `json:"status,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	Currency  string  `json:"currency,omitempty"`
	Category  string  `json:"category,omitempty"`
}

func newChatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant as a customer",
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint, err := socketURL(serverURL, sessionID)
			if err != nil {
				return err
			}

			conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), endpoint, nil)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", endpoint, err)
			}
			defer conn.Close()
			log.Debug().Str("url", endpoint).Msg("connected")

			done := make(chan struct{})
			go func() {
				defer close(done)
				for {
					var msg wireMessage
					if err := conn.ReadJSON(&msg); err != nil {
						log.Debug().Err(err).Msg("socket closed")
						return
					}
					if line := describe(msg); line != "" {
						fmt.Println(line)
					}
				}
			}()

			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				text := strings.TrimSpace(scanner.Text())
				if text == "" {
					continue
				}
				if err := conn.WriteJSON(wireMessage{Type: "user_message", Message: text}); err != nil {
					return fmt.Errorf("sending message: %w", err)
				}
			}

			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			<-done
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session id")
	return cmd
}

// socketURL maps the HTTP base URL onto the chat socket endpoint.
func socketURL(base, sessionID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	if sessionID != "" {
		u.Path += "/" + sessionID
	}
	return u.String(), nil
}

// describe renders one server message for the terminal. Typing indicators
// and keep-alives print nothing.
func describe(msg wireMessage) string {
	switch msg.Type {
	case "connected":
		return fmt.Sprintf("[session %s]", msg.SessionID)
	case "bot_message":
		return fmt.Sprintf("Ava: %v", msg.Data)
	case "agent_message":
		return fmt.Sprintf("Expert: %v", msg.Data)
	case "payment_trigger":
		return fmt.Sprintf("[payment requested: %.2f %s]", msg.Amount, strings.ToUpper(msg.Currency))
	case "paid":
		return fmt.Sprintf("[paid, routed to %s expert]", msg.Category)
	case "history":
		return "[resumed previous conversation]"
	case "error":
		return fmt.Sprintf("[error] %v", msg.Data)
	default:
		return ""
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
