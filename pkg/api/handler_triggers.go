package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/replyfleet/replyfleet/pkg/models"
)

func userTelegramIDQuery(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Query("user_telegram_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or missing user_telegram_id"})
		return 0, false
	}
	return id, true
}

// ListTriggers handles GET /api/triggers/?user_telegram_id=N. Workers fetch
// this per incoming message (through a short TTL cache); order is insertion
// order and the engine uses the first match.
func (s *Server) ListTriggers(c *gin.Context) {
	telegramID, ok := userTelegramIDQuery(c)
	if !ok {
		return
	}
	triggers, err := s.triggers.ListByTelegramID(c.Request.Context(), telegramID)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if triggers == nil {
		triggers = []models.Trigger{}
	}
	c.JSON(http.StatusOK, triggers)
}

// CreateTriggerRequest is the body for POST /api/triggers/.
type CreateTriggerRequest struct {
	UserTelegramID int64  `json:"user_telegram_id" binding:"required"`
	Phrase         string `json:"phrase" binding:"required"`
	ReplyBody      string `json:"reply_body" binding:"required"`
}

// CreateTrigger handles POST /api/triggers/.
func (s *Server) CreateTrigger(c *gin.Context) {
	var req CreateTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	trigger, err := s.triggers.Create(c.Request.Context(), req.UserTelegramID, req.Phrase, req.ReplyBody)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, trigger)
}

// TriggerLimit handles GET /api/triggers/limit?user_telegram_id=N.
func (s *Server) TriggerLimit(c *gin.Context) {
	telegramID, ok := userTelegramIDQuery(c)
	if !ok {
		return
	}
	info, err := s.triggers.Limit(c.Request.Context(), telegramID)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// DeleteTrigger handles DELETE /api/triggers/{id}?user_telegram_id=N. The
// caller must name the owner; a mismatched owner gets 404.
func (s *Server) DeleteTrigger(c *gin.Context) {
	triggerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trigger id"})
		return
	}
	telegramID, ok := userTelegramIDQuery(c)
	if !ok {
		return
	}
	if err := s.triggers.Delete(c.Request.Context(), telegramID, triggerID); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
