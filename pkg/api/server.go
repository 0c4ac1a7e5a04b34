// Package api exposes the registry's HTTP surface: the worker-facing claim
// and lease endpoints plus user, trigger, payment, and administrator CRUD.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/replyfleet/replyfleet/pkg/database"
	"github.com/replyfleet/replyfleet/pkg/services"
)

// Server is the registry HTTP server.
type Server struct {
	db       *database.Client
	users    *services.UserService
	triggers *services.TriggerService
	payments *services.PaymentService
	admins   *services.AdminService

	httpServer *http.Server
}

// NewServer creates the API server with its service dependencies.
func NewServer(db *database.Client, users *services.UserService, triggers *services.TriggerService, payments *services.PaymentService, admins *services.AdminService) *Server {
	return &Server{
		db:       db,
		users:    users,
		triggers: triggers,
		payments: payments,
		admins:   admins,
	}
}

// Routes builds the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", s.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := router.Group("/api")

	users := apiGroup.Group("/users")
	{
		users.POST("/claim", RequireWorkerID(), s.ClaimUsers)
		users.POST("/heartbeat/:telegram_id", s.Heartbeat)
		users.POST("/session-revoked/:telegram_id", s.SessionRevoked)
		users.POST("/worker-disconnected/:telegram_id", s.WorkerDisconnected)
		users.POST("/register", s.RegisterUser)
		users.POST("/complete-registration", s.CompleteRegistration)
		users.GET("/:telegram_id", s.GetUser)
		users.GET("/:telegram_id/connection-status", s.ConnectionStatus)
		users.POST("/:telegram_id/phone", s.UpdatePhone)
	}

	triggers := apiGroup.Group("/triggers")
	{
		triggers.GET("/", s.ListTriggers)
		triggers.POST("/", s.CreateTrigger)
		triggers.GET("/limit", s.TriggerLimit)
		triggers.DELETE("/:id", s.DeleteTrigger)
	}

	payments := apiGroup.Group("/payments")
	{
		payments.POST("/", s.CreatePayment)
		payments.GET("/", s.ListPayments)
		payments.POST("/:id/status", s.UpdatePaymentStatus)
	}

	admins := apiGroup.Group("/admins")
	{
		admins.GET("/", s.ListAdmins)
		admins.POST("/", s.UpsertAdmin)
	}

	return router
}

// Start begins serving on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Health handles GET /healthz.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db.Pool())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbHealth,
	})
}
