package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/patriotgo-chat-api/models"
	"github.com/kendall-kelly/patriotgo-chat-api/services"
	"github.com/kendall-kelly/patriotgo-chat-api/utils"
	"go.uber.org/zap"
)

// ChatController handles conversation and message endpoints
type ChatController struct {
	chat   *services.ChatService
	logger *zap.Logger
}

// NewChatController creates a ChatController
func NewChatController(chat *services.ChatService, logger *zap.Logger) *ChatController {
	return &ChatController{
		chat:   chat,
		logger: logger.Named("http"),
	}
}

// CreateConversationRequest represents the request body for creating a conversation
type CreateConversationRequest struct {
	Members []string `json:"members" binding:"required"`
	RideID  *string  `json:"rideId"`
	Type    string   `json:"type" binding:"omitempty,oneof=direct group"`
}

// CreateConversation handles POST /api/v1/conversations - creates a conversation or returns the existing direct one
func (h *ChatController) CreateConversation(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.PureJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    services.CodeInvalidInput,
				"message": "members must be an array of 2+ userIds",
			},
		})
		return
	}

	conv, created, err := h.chat.StartConversation(c.Request.Context(), services.StartConversationInput{
		CallerID: userID,
		Members:  req.Members,
		RideID:   req.RideID,
		Group:    req.Type == models.ConversationKindGroup,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondData(c, status, conv)
}

// ListConversations handles GET /api/v1/conversations - lists the caller's inbox, newest first
func (h *ChatController) ListConversations(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	limit, err := utils.ParsePageSize(c.Query("limit"))
	if err != nil {
		c.PureJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    services.CodeInvalidInput,
				"message": "limit must be a number",
			},
		})
		return
	}

	entries, err := h.chat.ListConversations(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, entries)
}

// GetConversation handles GET /api/v1/conversations/:id - returns one conversation to a member
func (h *ChatController) GetConversation(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	conv, err := h.chat.GetConversation(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, conv)
}

// StoreStatus handles GET /api/v1/store/status - checks backend connectivity
func (h *ChatController) StoreStatus(c *gin.Context) {
	if err := h.chat.Ping(c.Request.Context()); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Store connected",
	})
}
