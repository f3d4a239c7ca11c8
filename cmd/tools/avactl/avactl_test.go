package main

import (
	"strings"
	"testing"
	"time"

	"github.com/helpbyexperts/ava/backend/internal/model/chat"
)

func TestSocketURL(t *testing.T) {
	cases := []struct {
		base    string
		session string
		want    string
	}{
		{"http://localhost:10000", "", "ws://localhost:10000/ws"},
		{"https://ava.example/", "abc", "wss://ava.example/ws/abc"},
		{"http://host/prefix", "a b", "ws://host/prefix/ws/a%20b"},
	}
	for _, tc := range cases {
		got, err := socketURL(tc.base, tc.session)
		if err != nil {
			t.Fatalf("socketURL(%q): %v", tc.base, err)
		}
		if got != tc.want {
			t.Fatalf("socketURL(%q, %q) = %q, want %q", tc.base, tc.session, got, tc.want)
		}
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		msg  wireMessage
		want string
	}{
		{wireMessage{Type: "bot_message", Data: "Is it charging?"}, "Ava: Is it charging?"},
		{wireMessage{Type: "payment_trigger", Amount: 5, Currency: "usd"}, "[payment requested: 5.00 USD]"},
		{wireMessage{Type: "paid", Category: "tech"}, "[paid, routed to tech expert]"},
		{wireMessage{Type: "bot_typing", Status: "true"}, ""},
		{wireMessage{Type: "pong"}, ""},
	}
	for _, tc := range cases {
		if got := describe(tc.msg); got != tc.want {
			t.Fatalf("describe(%s) = %q, want %q", tc.msg.Type, got, tc.want)
		}
	}
}

func TestRenderTranscript(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	out := renderTranscript(chat.Session{
		ID:       "abc",
		Paid:     true,
		Category: "tech",
		Turns: []chat.Turn{
			{Sender: chat.SenderUser, Text: "My laptop won't turn on", CreatedAt: at},
			{Sender: chat.SenderAssistant, Text: "Is it charging?", CreatedAt: at},
		},
	})

	if !strings.HasPrefix(out, "session abc  paid=true  questions=1  category=tech\n") {
		t.Fatalf("unexpected header in %q", out)
	}
	if !strings.Contains(out, "My laptop won't turn on") || !strings.Contains(out, "Is it charging?") {
		t.Fatalf("missing turns in %q", out)
	}
	if strings.Count(out, "\n") != 3 {
		t.Fatalf("expected three lines, got %q", out)
	}
}
