package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GiftList/internal/service"
	logger "github.com/Gopher0727/GiftList/middleware/log"
)

type MessageHandler struct {
	messageService service.IMessageService
	log            *logger.Logger
}

func NewMessageHandler(messageService service.IMessageService, log *logger.Logger) *MessageHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &MessageHandler{messageService: messageService, log: log.Named("handler")}
}

// SendMessage handles sending a message to a group
func (h *MessageHandler) SendMessage(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.messageService.SendMessage(c.Request.Context(), who, c.Param("id"), req.Body)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// GetMessages pages backwards through a group's history. Query: before
// (message id, exclusive) and limit.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var before int64
	if raw := c.Query("before"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before"})
			return
		}
		before = n
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	messages, hasMore, err := h.messageService.ListMessages(c.Request.Context(), who, c.Param("id"), before, limit)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"hasMore":  hasMore,
	})
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req struct {
		At time.Time `json:"at"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if err := h.messageService.MarkRead(c.Request.Context(), who, c.Param("id"), req.At); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
