package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

func newMarkPaidCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-paid <session-id>",
		Short: "Mark a session paid and hand it to the experts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Changed bool `json:"changed"`
			}
			if err := agentCall(cmd, http.MethodPost, "/sessions/"+url.PathEscape(args[0])+"/paid", nil, &out); err != nil {
				return err
			}
			if out.Changed {
				fmt.Printf("%s marked paid\n", args[0])
			} else {
				fmt.Printf("%s was already paid\n", args[0])
			}
			return nil
		},
	}
}

func newReplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reply <session-id> <message>",
		Short: "Send an expert reply to a paid session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"message": strings.Join(args[1:], " ")}
			return agentCall(cmd, http.MethodPost, "/sessions/"+url.PathEscape(args[0])+"/reply", body, nil)
		},
	}
}

// agentCall performs one request against the expert API and decodes the
// JSON response into out when it is non-nil.
func agentCall(cmd *cobra.Command, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(cmd.Context(), method, strings.TrimSuffix(serverURL, "/")+"/api/agent"+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if agentToken != "" {
		req.Header.Set("Authorization", "Bearer "+agentToken)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, apiErr.Error)
	}
	log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("agent call ok")

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
