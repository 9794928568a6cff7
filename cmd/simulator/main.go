package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SendMessageRequest mirrors the gateway's send contract.
type SendMessageRequest struct {
	GroupJID  string `json:"group_jid" binding:"required"`
	Message   string `json:"message"`
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
}

// SendMessageResponse is the synchronous accept/reject answer.
type SendMessageResponse struct {
	Accepted  bool   `json:"accepted"`
	MessageID string `json:"message_id,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_message,omitempty"`
}

type SessionStatusResponse struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
}

type webhookEvent struct {
	Event        string `json:"event"`
	GroupJID     string `json:"groupJid,omitempty"`
	MessageID    string `json:"messageId,omitempty"`
	ReaderPhone  string `json:"readerPhone,omitempty"`
	ReactorPhone string `json:"reactorPhone,omitempty"`
	Emoji        string `json:"emoji,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// MockGateway simulates the WhatsApp VPS gateway: it accepts sends, then
// posts delivery webhooks back at the campaign service after a random delay.
type MockGateway struct {
	acceptRate    float64
	connectedRate float64
	minDelay      time.Duration
	maxDelay      time.Duration
	webhookURL    string
	webhookSecret string
	rng           *rand.Rand
}

func NewMockGateway(acceptRate, connectedRate float64, minDelay, maxDelay time.Duration, webhookURL, webhookSecret string) *MockGateway {
	return &MockGateway{
		acceptRate:    acceptRate,
		connectedRate: connectedRate,
		minDelay:      minDelay,
		maxDelay:      maxDelay,
		webhookURL:    webhookURL,
		webhookSecret: webhookSecret,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockGateway) connected() bool {
	return m.rng.Float64() < m.connectedRate
}

func (m *MockGateway) accepts() bool {
	return m.rng.Float64() < m.acceptRate
}

func (m *MockGateway) randomDelay() time.Duration {
	if m.maxDelay <= m.minDelay {
		return m.minDelay
	}
	delta := m.maxDelay - m.minDelay
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

func (m *MockGateway) randomPhone() string {
	return fmt.Sprintf("+%d", 10000000000+m.rng.Int63n(89999999999))
}

// simulateLifecycle posts the asynchronous webhook sequence for one accepted
// message: delivered receipts, a few read receipts, occasionally a reaction.
func (m *MockGateway) simulateLifecycle(groupJID, messageID string) {
	time.Sleep(m.randomDelay())

	m.postWebhook(webhookEvent{
		Event:     "message_sent",
		GroupJID:  groupJID,
		MessageID: messageID,
		Timestamp: time.Now().Unix(),
	})

	readers := 1 + m.rng.Intn(5)
	for i := 0; i < readers; i++ {
		phone := m.randomPhone()
		time.Sleep(m.randomDelay())
		m.postWebhook(webhookEvent{
			Event:       "delivered",
			MessageID:   messageID,
			ReaderPhone: phone,
			Timestamp:   time.Now().Unix(),
		})
		if m.rng.Float64() < 0.7 {
			time.Sleep(m.randomDelay())
			m.postWebhook(webhookEvent{
				Event:       "read",
				MessageID:   messageID,
				ReaderPhone: phone,
				Timestamp:   time.Now().Unix(),
			})
		}
		if m.rng.Float64() < 0.2 {
			emojis := []string{"👍", "❤️", "😂", "🔥"}
			m.postWebhook(webhookEvent{
				Event:        "reaction_add",
				MessageID:    messageID,
				ReactorPhone: phone,
				Emoji:        emojis[m.rng.Intn(len(emojis))],
				Timestamp:    time.Now().Unix(),
			})
		}
	}
}

func (m *MockGateway) postWebhook(ev webhookEvent) {
	if m.webhookURL == "" {
		return
	}
	body, _ := json.Marshal(ev)
	req, err := http.NewRequest(http.MethodPost, m.webhookURL, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("Failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Secret", m.webhookSecret)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("event", ev.Event).Msg("Webhook post failed")
		return
	}
	defer resp.Body.Close()

	log.Info().
		Str("event", ev.Event).
		Str("message_id", ev.MessageID).
		Int("status", resp.StatusCode).
		Msg("Webhook posted")
}

type Handler struct {
	gw *MockGateway
}

func NewHandler(gw *MockGateway) *Handler {
	return &Handler{gw: gw}
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if !h.gw.connected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "session disconnected",
		})
		return
	}

	if !h.gw.accepts() {
		c.JSON(http.StatusOK, SendMessageResponse{
			Accepted:  false,
			ErrorCode: "GROUP_NOT_FOUND",
			ErrorMsg:  "the group does not exist or the account was removed from it",
		})
		return
	}

	messageID := uuid.New().String()
	log.Info().
		Str("group_jid", req.GroupJID).
		Str("message_id", messageID).
		Msg("Message accepted")

	go h.gw.simulateLifecycle(req.GroupJID, messageID)

	c.JSON(http.StatusOK, SendMessageResponse{
		Accepted:  true,
		MessageID: messageID,
	})
}

func (h *Handler) SessionStatus(c *gin.Context) {
	if h.gw.connected() {
		c.JSON(http.StatusOK, SessionStatusResponse{Connected: true, State: "open"})
		return
	}
	c.JSON(http.StatusOK, SessionStatusResponse{Connected: false, State: "close"})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	api := router.Group("/api")
	{
		api.POST("/messages/send", handler.SendMessage)
		api.GET("/session/status", handler.SessionStatus)
	}

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8082")
	acceptRate := getEnvFloat("ACCEPT_RATE", 0.95)
	connectedRate := getEnvFloat("CONNECTED_RATE", 0.98)
	minDelay := getEnvDuration("MIN_DELAY", 200*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 2*time.Second)
	webhookURL := getEnv("WEBHOOK_URL", "")
	webhookSecret := getEnv("WEBHOOK_SECRET", "")

	log.Info().
		Str("port", port).
		Float64("accept_rate", acceptRate).
		Float64("connected_rate", connectedRate).
		Str("webhook_url", webhookURL).
		Msg("Starting mock WhatsApp gateway")

	gw := NewMockGateway(acceptRate, connectedRate, minDelay, maxDelay, webhookURL, webhookSecret)
	handler := NewHandler(gw)
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
