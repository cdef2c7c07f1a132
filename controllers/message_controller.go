package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/patriotgo-chat-api/services"
	"github.com/kendall-kelly/patriotgo-chat-api/utils"
)

// SendMessageRequest represents the request body for sending a message.
// ConversationID is only read on the flat /messages route.
type SendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text" binding:"required"`
}

// SendMessage handles POST /api/v1/conversations/:id/messages and
// POST /api/v1/messages - sends a message to a conversation
func (h *ChatController) SendMessage(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.PureJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    services.CodeInvalidInput,
				"message": "conversationId, text required",
			},
		})
		return
	}

	conversationID := c.Param("id")
	if conversationID == "" {
		conversationID = req.ConversationID
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), userID, conversationID, req.Text)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusCreated, msg)
}

// ListMessages handles GET /api/v1/conversations/:id/messages and
// GET /api/v1/messages?conversationId= - lists messages oldest first.
// after=<ms> and afterId=<message id> return only newer messages.
func (h *ChatController) ListMessages(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	conversationID := c.Param("id")
	if conversationID == "" {
		conversationID = c.Query("conversationId")
	}

	opts, err := parseListMessagesQuery(c)
	if err != nil {
		c.PureJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    services.CodeInvalidInput,
				"message": err.Error(),
			},
		})
		return
	}

	messages, err := h.chat.ListMessages(c.Request.Context(), userID, conversationID, opts)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, messages)
}

func parseListMessagesQuery(c *gin.Context) (services.ListMessagesOptions, error) {
	var opts services.ListMessagesOptions

	limit, err := utils.ParsePageSize(c.Query("limit"))
	if err != nil {
		return opts, &services.ChatError{Code: services.CodeInvalidInput, Message: "limit must be a number"}
	}
	opts.Limit = limit

	if raw := c.Query("after"); raw != "" {
		after, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || after < 0 {
			return opts, &services.ChatError{Code: services.CodeInvalidInput, Message: "after must be a millisecond timestamp"}
		}
		opts.After = &after
	}
	opts.AfterID = c.Query("afterId")
	return opts, nil
}
