package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
	sessionx "github.com/nexusbot/nexus-relay/engine/session"
	tenantx "github.com/nexusbot/nexus-relay/engine/tenant"
)

// Config is read from the environment with the SERVER prefix.
type Config struct {
	Port           int           `split_words:"true" default:"5001"`
	AllowedOrigins []string      `split_words:"true" default:"http://localhost:5173,http://localhost:5174,http://localhost:3000"`
	ConfigPath     string        `split_words:"true" default:"./data/config.json"`
	DataRoot       string        `split_words:"true" default:"./data"`
	ShutdownGrace  time.Duration `split_words:"true" default:"10s"`
}

// Bot is the slice of the conversation engine the HTTP layer needs.
type Bot interface {
	HandleMessage(ctx context.Context, platform contractx.Platform, userID, text string, profile *contractx.TenantProfile) string
	SetInstruction(ctx context.Context, platform contractx.Platform, userID, instruction string) bool
}

// Sender delivers a reply to one messaging platform.
type Sender interface {
	SendText(ctx context.Context, recipientID, text string) error
}

// WebhookVerifier answers the Meta webhook subscription handshake.
type WebhookVerifier interface {
	VerifyWebhook(mode, token, challenge string) (string, bool)
}

// Server exposes the channel webhooks and the admin API.
type Server struct {
	cfg       Config
	bot       Bot
	store     sessionx.Store
	tenants   *tenantx.Directory
	whatsapp  channel
	messenger channel
}

type channel struct {
	sender    Sender
	verifier  WebhookVerifier
	signature func(body []byte, header string) bool
}

func New(cfg Config, bot Bot, store sessionx.Store, tenants *tenantx.Directory) (*Server, error) {
	if bot == nil {
		return nil, errors.New("bot is required")
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if tenants == nil {
		return nil, errors.New("tenant directory is required")
	}
	return &Server{
		cfg:     cfg,
		bot:     bot,
		store:   store,
		tenants: tenants,
	}, nil
}

// WithWhatsApp wires the WhatsApp channel. The signature check may be
// nil when no app secret is configured.
func (s *Server) WithWhatsApp(sender Sender, verifier WebhookVerifier, signature func([]byte, string) bool) *Server {
	s.whatsapp = channel{sender: sender, verifier: verifier, signature: signature}
	return s
}

func (s *Server) WithMessenger(sender Sender, verifier WebhookVerifier) *Server {
	s.messenger = channel{sender: sender, verifier: verifier}
	return s
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.corsMiddleware())

	if s.whatsapp.verifier != nil {
		router.GET("/webhook/whatsapp", s.verifyWhatsApp)
		router.POST("/webhook/whatsapp", s.receiveWhatsApp)
	}
	if s.messenger.verifier != nil {
		router.GET("/webhook/messenger", s.verifyMessenger)
		router.POST("/webhook/messenger", s.receiveMessenger)
	}

	api := router.Group("/api")
	{
		api.GET("/sessions/:platform", s.listSessions)
		api.GET("/sessions/:platform/:senderId", s.getSession)
		api.POST("/sessions/:platform/:senderId/instruction", s.setInstruction)

		api.GET("/config", s.getConfig)
		api.POST("/config", s.saveConfig)

		api.GET("/products", s.listProducts)
		api.POST("/products", s.addProduct)
		api.PUT("/products/:id", s.updateProduct)
		api.DELETE("/products/:id", s.deleteProduct)
	}

	return router
}

// Run serves until the context is cancelled, then drains with a grace
// period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.cfg.Port).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	grace := s.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(s.cfg.AllowedOrigins))
	for _, origin := range s.cfg.AllowedOrigins {
		allowed[origin] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := allowed[origin]; ok {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func platformParam(c *gin.Context) (contractx.Platform, bool) {
	switch p := contractx.Platform(c.Param("platform")); p {
	case contractx.PlatformWhatsApp, contractx.PlatformMessenger, contractx.PlatformSandbox:
		return p, true
	default:
		return "", false
	}
}
