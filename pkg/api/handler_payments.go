package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/replyfleet/replyfleet/pkg/models"
)

// CreatePaymentRequest is the body for POST /api/payments/.
type CreatePaymentRequest struct {
	UserTelegramID int64       `json:"user_telegram_id" binding:"required"`
	Plan           models.Plan `json:"plan" binding:"required"`
	Amount         int         `json:"amount" binding:"required"`
}

// CreatePayment handles POST /api/payments/. Payments are informational:
// marking one paid never changes the plan by itself.
func (s *Server) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payment, err := s.payments.Create(c.Request.Context(), req.UserTelegramID, req.Plan, req.Amount)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// ListPayments handles GET /api/payments/?user_telegram_id=N.
func (s *Server) ListPayments(c *gin.Context) {
	telegramID, ok := userTelegramIDQuery(c)
	if !ok {
		return
	}
	payments, err := s.payments.ListByTelegramID(c.Request.Context(), telegramID)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	c.JSON(http.StatusOK, payments)
}

// UpdatePaymentStatusRequest is the body for POST /api/payments/{id}/status.
type UpdatePaymentStatusRequest struct {
	Status models.PaymentStatus `json:"status" binding:"required"`
}

// UpdatePaymentStatus handles POST /api/payments/{id}/status.
func (s *Server) UpdatePaymentStatus(c *gin.Context) {
	paymentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}
	var req UpdatePaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.payments.UpdateStatus(c.Request.Context(), paymentID, req.Status); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListAdmins handles GET /api/admins/.
func (s *Server) ListAdmins(c *gin.Context) {
	admins, err := s.admins.List(c.Request.Context())
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if admins == nil {
		admins = []models.Admin{}
	}
	c.JSON(http.StatusOK, admins)
}

// UpsertAdminRequest is the body for POST /api/admins/.
type UpsertAdminRequest struct {
	TelegramID int64 `json:"telegram_id" binding:"required"`
	Active     *bool `json:"active"`
}

// UpsertAdmin handles POST /api/admins/.
func (s *Server) UpsertAdmin(c *gin.Context) {
	var req UpsertAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	if err := s.admins.Upsert(c.Request.Context(), req.TelegramID, active); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
