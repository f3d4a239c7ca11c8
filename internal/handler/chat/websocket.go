package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/helpbyexperts/ava/backend/internal/logging"
	"github.com/helpbyexperts/ava/backend/internal/middleware"
	"github.com/helpbyexperts/ava/backend/internal/model/chat"
	"github.com/helpbyexperts/ava/backend/internal/observability"
	"github.com/helpbyexperts/ava/backend/internal/service/payment"
	"github.com/helpbyexperts/ava/backend/internal/service/triage"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingPeriod   = 54 * time.Second
	queueSize    = 8
)

// Manager 是 WebSocket 所依赖的分诊管理器接口。
type Manager interface {
	Connect(ctx context.Context, sessionID string, client triage.Client) (chat.Session, bool, error)
	Disconnect(ctx context.Context, sessionID string, client triage.Client)
	HandleInbound(ctx context.Context, sessionID, text string) (triage.Result, error)
	MarkPaid(ctx context.Context, sessionID string) bool
}

// PaymentConfirmer 向支付服务核实客户端上报的付款。
type PaymentConfirmer interface {
	ConfirmPaymentIntent(ctx context.Context, intentID string) (payment.Confirmation, error)
}

// Options 配置 WebSocket 端点。
type Options struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// WebSocketHandler 为聊天组件提供服务。
type WebSocketHandler struct {
	manager  Manager
	payments PaymentConfirmer
	opts     Options
	upgrader websocket.Upgrader
	log      *logging.Logger
}

// NewWebSocketHandler 创建处理器。payments 可以为 nil，
// 此时拒绝客户端的付款确认，只有 webhook 能把会话标记为已付款。
func NewWebSocketHandler(manager Manager, payments PaymentConfirmer, opts Options, log *logging.Logger) *WebSocketHandler {
	if log == nil {
		log = logging.Nop()
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 2
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 5
	}
	h := &WebSocketHandler{
		manager:  manager,
		payments: payments,
		opts:     opts,
		log:      log.Sub("websocket"),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(opts.AllowedOrigins, r.Header.Get("Origin"))
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return h
}

// RegisterRoutes 注册 WebSocket 路由。
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type            string `json:"type"`
	SessionID       string `json:"sessionId"`
	Message         string `json:"message"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Status    string      `json:"status,omitempty"`
	Amount    float64     `json:"amount,omitempty"`
	Currency  string      `json:"currency,omitempty"`
	Category  string      `json:"category,omitempty"`
	Turns     []chat.Turn `json:"turns,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connection 把 websocket 适配为 triage.Client。
// gorilla 只允许一个并发写入者，所有写操作都经过 mu。
type connection struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

func (c *connection) Send(ev triage.Event) error {
	return c.write(encodeEvent(c.sessionID, ev))
}

func encodeEvent(sessionID string, ev triage.Event) outgoingMessage {
	msg := outgoingMessage{
		Type:      ev.Type,
		SessionID: sessionID,
		Category:  ev.Category,
		Timestamp: time.Now().Unix(),
	}
	switch ev.Type {
	case triage.EventBotMessage, triage.EventAgentMessage:
		msg.Data = ev.Text
	case triage.EventBotTyping:
		msg.Status = "false"
		if ev.Typing {
			msg.Status = "true"
		}
	case triage.EventPaymentTrigger:
		msg.Amount = ev.Amount
		msg.Currency = ev.Currency
	case triage.EventHistory:
		msg.Turns = ev.Turns
	}
	return msg
}

func (c *connection) write(msg outgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (c *connection) sendError(message string) {
	_ = c.write(outgoingMessage{Type: "error", SessionID: c.sessionID, Data: message, Timestamp: time.Now().Unix()})
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		sessionID = strings.TrimSpace(r.URL.Query().Get("sessionId"))
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if len(sessionID) > 128 {
		http.Error(w, "sessionId too long", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer ws.Close()

	observability.ConnectionOpened()
	defer observability.ConnectionClosed()

	client := &connection{conn: ws, sessionID: sessionID}
	log := h.log.With("session_id", sessionID)
	log.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// 连接断开时进行中的回复仍会完成，随后被丢弃
	workCtx := context.WithoutCancel(ctx)

	_ = client.write(outgoingMessage{Type: "connected", SessionID: sessionID, Timestamp: time.Now().Unix()})

	if _, _, err := h.manager.Connect(ctx, sessionID, client); err != nil {
		log.Warn().Err(err).Msg("connect failed")
		client.sendError("could not start session")
		return
	}

	ws.SetReadLimit(64 << 10)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, client)

	queue := make(chan inboundMessage, queueSize)
	go h.worker(ctx, workCtx, client, queue)
	defer func() {
		cancel()
		h.manager.Disconnect(workCtx, sessionID, client)
		close(queue)
	}()

	limiter := middleware.NewLimiter(h.opts.RateLimitRPS, h.opts.RateLimitBurst)
	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("read error")
			}
			log.Info().Msg("client disconnected")
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			client.sendError("session mismatch")
			continue
		}

		switch msg.Type {
		case "ping":
			_ = client.write(outgoingMessage{Type: "pong", SessionID: sessionID, Timestamp: time.Now().Unix()})
			continue
		case "user_message", "payment_confirmed":
		default:
			client.sendError("unsupported message type: " + msg.Type)
			continue
		}

		if !limiter.Allow() {
			client.sendError("too many messages, slow down")
			continue
		}

		select {
		case queue <- msg:
		default:
			client.sendError("still working on your previous message")
		}
	}
}

// worker 按到达顺序处理单个连接的消息。
func (h *WebSocketHandler) worker(connCtx, workCtx context.Context, client *connection, queue <-chan inboundMessage) {
	for msg := range queue {
		if connCtx.Err() != nil {
			return
		}
		switch msg.Type {
		case "user_message":
			if _, err := h.manager.HandleInbound(workCtx, client.sessionID, msg.Message); err != nil {
				h.log.Warn().Err(err).Str("session_id", client.sessionID).Msg("inbound message failed")
				client.sendError("message could not be processed")
			}
		case "payment_confirmed":
			h.confirmPayment(workCtx, client, msg.PaymentIntentID)
		}
	}
}

func (h *WebSocketHandler) confirmPayment(ctx context.Context, client *connection, intentID string) {
	if h.payments == nil {
		client.sendError("payment verification unavailable")
		return
	}

	conf, err := h.payments.ConfirmPaymentIntent(ctx, intentID)
	switch {
	case errors.Is(err, payment.ErrNotConfigured):
		client.sendError("payment verification unavailable")
		return
	case err != nil:
		h.log.Warn().Err(err).Str("session_id", client.sessionID).Msg("payment confirmation failed")
		client.sendError("payment could not be verified")
		return
	}

	if !conf.Paid || conf.SessionID != client.sessionID {
		h.log.Warn().Str("session_id", client.sessionID).Str("intent", conf.Reference).Bool("paid", conf.Paid).Msg("payment confirmation rejected")
		client.sendError("payment not completed")
		return
	}

	h.manager.MarkPaid(ctx, client.sessionID)
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, client *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.ping(); err != nil {
				return
			}
		}
	}
}
