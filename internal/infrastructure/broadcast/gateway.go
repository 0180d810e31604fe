package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/ports"
	"meetrelay/internal/core/services"
	apperrors "meetrelay/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server frame events.
const (
	FrameSubscriptionSucceeded = "subscription_succeeded"
	FrameSubscriptionError     = "subscription_error"
	FrameUnsubscribed          = "unsubscribed"
	FramePong                  = "pong"
	FrameError                 = "error"
)

// Client actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// ClientFrame is what a subscriber sends over the socket.
type ClientFrame struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type GatewayConfig struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	SendBuffer        int
	MaxMessageBytes   int64
	MessagesPerSecond float64
	Burst             int
	MaxConnections    int
	AllowedOrigins    []string
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		PingInterval:      30 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SendBuffer:        256,
		MaxMessageBytes:   4096,
		MessagesPerSecond: 20,
		Burst:             40,
	}
}

// GatewayMetrics receives socket level counters.
type GatewayMetrics interface {
	ConnectionOpened()
	ConnectionClosed()
	FramesDropped(n uint64)
}

type nopGatewayMetrics struct{}

func (nopGatewayMetrics) ConnectionOpened()      {}
func (nopGatewayMetrics) ConnectionClosed()      {}
func (nopGatewayMetrics) FramesDropped(n uint64) {}

// Gateway accepts authenticated WebSocket subscribers and lets them
// subscribe to the channels the authorizer admits them to.
type Gateway struct {
	hub        *Hub
	auth       services.AuthService
	authorizer ports.ChannelAuthorizer
	metrics    GatewayMetrics
	cfg        GatewayConfig
	upgrader   websocket.Upgrader
	active     atomic.Int64
	logger     *zap.SugaredLogger
}

func NewGateway(
	hub *Hub,
	auth services.AuthService,
	authorizer ports.ChannelAuthorizer,
	metrics GatewayMetrics,
	cfg GatewayConfig,
	logger *zap.SugaredLogger,
) *Gateway {
	if metrics == nil {
		metrics = nopGatewayMetrics{}
	}
	def := DefaultGatewayConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}

	g := &Gateway{
		hub:        hub,
		auth:       auth,
		authorizer: authorizer,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// ActiveConnections returns the number of open sockets.
func (g *Gateway) ActiveConnections() int64 {
	return g.active.Load()
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "authorization token is required", http.StatusUnauthorized)
		return
	}
	claims, err := g.auth.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	if limit := g.cfg.MaxConnections; limit > 0 && g.active.Load() >= int64(limit) {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		gateway: g,
		conn:    conn,
		userID:  claims.UserID,
		sub:     NewSubscriber(g.cfg.SendBuffer),
		control: make(chan Frame, 16),
		done:    make(chan struct{}),
	}
	if g.cfg.MessagesPerSecond > 0 {
		burst := g.cfg.Burst
		if burst <= 0 {
			burst = int(g.cfg.MessagesPerSecond)
		}
		c.limiter = rate.NewLimiter(rate.Limit(g.cfg.MessagesPerSecond), burst)
	}

	g.active.Add(1)
	g.metrics.ConnectionOpened()
	g.logger.Infow("subscriber connected", "user_id", claims.UserID)

	go c.writePump()
	c.readPump(r.Context())
}

type client struct {
	gateway *Gateway
	conn    *websocket.Conn
	userID  domain.UserID
	sub     *Subscriber
	limiter *rate.Limiter

	control   chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) readPump(ctx context.Context) {
	g := c.gateway
	defer c.close()

	if g.cfg.MaxMessageBytes > 0 {
		c.conn.SetReadLimit(g.cfg.MaxMessageBytes)
	}
	c.conn.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
	})

	// The request context is cancelled once the handler returns, so detach.
	ctx = context.WithoutCancel(ctx)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Infow("error reading from subscriber", "user_id", c.userID, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))

		if c.limiter != nil && !c.limiter.Allow() {
			c.sendError(FrameError, "", apperrors.ErrCodeRateLimit, "too many messages")
			continue
		}

		var msg ClientFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(FrameError, "", apperrors.ErrCodeInvalidInput, "malformed frame")
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *client) handle(ctx context.Context, msg ClientFrame) {
	g := c.gateway

	switch msg.Action {
	case ActionSubscribe:
		if err := g.authorizer.Check(ctx, c.userID, msg.Channel); err != nil {
			code := apperrors.ErrCodeForbidden
			if appErr := apperrors.GetAppError(err); appErr != nil {
				code = appErr.Code
			}
			c.sendError(FrameSubscriptionError, msg.Channel, code, "subscription denied")
			return
		}
		g.hub.Subscribe(msg.Channel, c.sub)
		c.send(Frame{Event: FrameSubscriptionSucceeded, Channel: msg.Channel})

	case ActionUnsubscribe:
		g.hub.Unsubscribe(msg.Channel, c.sub)
		c.send(Frame{Event: FrameUnsubscribed, Channel: msg.Channel})

	case ActionPing:
		c.send(Frame{Event: FramePong})

	default:
		c.sendError(FrameError, "", apperrors.ErrCodeInvalidInput, "unknown action")
	}
}

// send queues a control frame. A client that stops reading its control
// queue is disconnected.
func (c *client) send(f Frame) {
	select {
	case c.control <- f:
	case <-c.done:
	default:
		c.gateway.logger.Warnw("control queue full, closing subscriber", "user_id", c.userID)
		c.close()
	}
}

func (c *client) sendError(event, channel string, code apperrors.ErrorCode, message string) {
	data, _ := json.Marshal(errorData{Code: string(code), Message: message})
	c.send(Frame{Event: event, Channel: channel, Data: data})
}

func (c *client) writePump() {
	g := c.gateway
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case f, ok := <-c.sub.Frames():
			if !ok {
				return
			}
			if err := c.write(f); err != nil {
				c.close()
				return
			}

		case f := <-c.control:
			if err := c.write(f); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *client) write(f Frame) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.gateway.cfg.WriteTimeout))
	return c.conn.WriteJSON(f)
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		g := c.gateway
		subscriptions := g.hub.UnsubscribeAll(c.sub)
		c.sub.Close()
		close(c.done)

		if dropped := c.sub.Dropped(); dropped > 0 {
			g.metrics.FramesDropped(dropped)
		}
		g.active.Add(-1)
		g.metrics.ConnectionClosed()
		g.logger.Infow("subscriber disconnected",
			"user_id", c.userID,
			"subscriptions", subscriptions,
			"dropped", c.sub.Dropped(),
		)
	})
}
