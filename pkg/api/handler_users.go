package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/replyfleet/replyfleet/pkg/metrics"
	"github.com/replyfleet/replyfleet/pkg/models"
	"github.com/replyfleet/replyfleet/pkg/services"
)

func telegramIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("telegram_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid telegram_id"})
		return 0, false
	}
	return id, true
}

// ClaimUsers handles POST /api/users/claim?limit=N.
//
// Failures never surface to the worker: any error rolls back the claim and
// returns an empty batch, so a spurious fault cannot stall the fleet's next
// claim attempt.
func (s *Server) ClaimUsers(c *gin.Context) {
	workerID := c.GetString(workerIDKey)

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	metrics.ClaimRequestsTotal.Inc()

	claimed, err := s.users.Claim(c.Request.Context(), workerID, limit)
	if err != nil {
		slog.Error("Claim transaction failed", "worker_id", workerID, "error", err)
		c.JSON(http.StatusOK, []models.ClaimedUser{})
		return
	}
	if claimed == nil {
		claimed = []models.ClaimedUser{}
	}

	metrics.ClaimedUsersTotal.Add(float64(len(claimed)))
	c.JSON(http.StatusOK, claimed)
}

// Heartbeat handles POST /api/users/heartbeat/{telegram_id}.
func (s *Server) Heartbeat(c *gin.Context) {
	telegramID, ok := telegramIDParam(c)
	if !ok {
		return
	}
	if err := s.users.Heartbeat(c.Request.Context(), telegramID); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SessionRevoked handles POST /api/users/session-revoked/{telegram_id}.
// An unknown user is ignored rather than rejected: revocation is a
// best-effort signal from workers and must be idempotent.
func (s *Server) SessionRevoked(c *gin.Context) {
	telegramID, ok := telegramIDParam(c)
	if !ok {
		return
	}
	if err := s.users.ClearSession(c.Request.Context(), telegramID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

// WorkerDisconnected handles POST /api/users/worker-disconnected/{telegram_id}.
func (s *Server) WorkerDisconnected(c *gin.Context) {
	telegramID, ok := telegramIDParam(c)
	if !ok {
		return
	}
	if err := s.users.MarkDisconnected(c.Request.Context(), telegramID); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

// RegisterUserRequest is the body for POST /api/users/register.
type RegisterUserRequest struct {
	TelegramID int64  `json:"telegram_id" binding:"required"`
	Name       string `json:"name"`
}

// RegisterUser handles POST /api/users/register. Idempotent.
func (s *Server) RegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.users.Register(c.Request.Context(), req.TelegramID, req.Name)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// CompleteRegistration handles POST /api/users/complete-registration: the
// interactive login flow posts the freshly minted session token here. A
// replaced token is a rotation, not a revocation.
func (s *Server) CompleteRegistration(c *gin.Context) {
	var req services.CompleteRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.users.CompleteRegistration(c.Request.Context(), req); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetUser handles GET /api/users/{telegram_id}.
func (s *Server) GetUser(c *gin.Context) {
	telegramID, ok := telegramIDParam(c)
	if !ok {
		return
	}
	view, err := s.users.Lookup(c.Request.Context(), telegramID)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ConnectionStatus handles GET /api/users/{telegram_id}/connection-status.
func (s *Server) ConnectionStatus(c *gin.Context) {
	telegramID, ok := telegramIDParam(c)
	if !ok {
		return
	}
	view, err := s.users.Lookup(c.Request.Context(), telegramID)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"telegram_id":   telegramID,
		"connected":     view.SessionToken != "",
		"worker_active": view.WorkerActive,
	})
}

// UpdatePhoneRequest is the body for POST /api/users/{telegram_id}/phone.
type UpdatePhoneRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// UpdatePhone handles POST /api/users/{telegram_id}/phone. A phone update
// does not change registration state.
func (s *Server) UpdatePhone(c *gin.Context) {
	telegramID, ok := telegramIDParam(c)
	if !ok {
		return
	}
	var req UpdatePhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.users.UpdatePhone(c.Request.Context(), telegramID, req.Phone); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
