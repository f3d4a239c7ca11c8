package triage

import "github.com/helpbyexperts/ava/backend/internal/model/chat"

// Client event types pushed to the browser widget.
const (
	EventBotMessage     = "bot_message"
	EventBotTyping      = "bot_typing"
	EventPaymentTrigger = "payment_trigger"
	EventAgentMessage   = "agent_message"
	EventPaid           = "paid"
	EventHistory        = "history"
)

// Event is one message for the connected client. The transport decides the
// wire encoding.
type Event struct {
	Type     string
	Text     string
	Typing   bool
	Amount   float64
	Currency string
	Category string
	Turns    []chat.Turn
}

// Client is the connection a session's events are delivered to.
type Client interface {
	Send(Event) error
}

// ResultKind classifies what HandleInbound did with a message.
type ResultKind string

const (
	// KindReply means the model answered and the reply was delivered.
	KindReply ResultKind = "reply"
	// KindReprompt means the input was blank and nothing changed.
	KindReprompt ResultKind = "reprompt"
	// KindForwarded means the session is paid and the message went to the experts.
	KindForwarded ResultKind = "forwarded"
	// KindFallback means generation failed or is unavailable; a static message was sent.
	KindFallback ResultKind = "fallback"
	// KindDiscarded means the reply arrived after the session was paid or closed.
	KindDiscarded ResultKind = "discarded"
)

// Result is the outcome of one inbound message.
type Result struct {
	Kind            ResultKind
	DisplayText     string
	ReadyForPayment bool
	Category        string
}
