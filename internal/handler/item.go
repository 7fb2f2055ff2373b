package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GiftList/internal/model"
	"github.com/Gopher0727/GiftList/internal/service"
	logger "github.com/Gopher0727/GiftList/middleware/log"
)

type ItemHandler struct {
	itemService service.IItemService
	log         *logger.Logger
}

func NewItemHandler(itemService service.IItemService, log *logger.Logger) *ItemHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ItemHandler{itemService: itemService, log: log.Named("handler")}
}

type itemRequest struct {
	Kind  string   `json:"kind"`
	Body  string   `json:"body"`
	Links []string `json:"links"`
}

// kindOf defaults to regular; unknown kinds are left for the service to reject.
func kindOf(raw string) model.ItemKind {
	if raw == "" {
		return model.ItemRegular
	}
	return model.ItemKind(raw)
}

func (h *ItemHandler) AddItem(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	item, err := h.itemService.AddItem(c.Request.Context(), who, c.Param("id"), kindOf(req.Kind), req.Body, req.Links)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *ItemHandler) EditItem(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	item, err := h.itemService.EditItem(c.Request.Context(), who, c.Param("id"), c.Param("itemId"), kindOf(req.Kind), req.Body, req.Links)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *ItemHandler) DeleteItem(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	if err := h.itemService.DeleteItem(c.Request.Context(), who, c.Param("id"), c.Param("itemId"), kindOf(c.Query("kind"))); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ToggleSelect selects or unselects an item for the caller
func (h *ItemHandler) ToggleSelect(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	item, err := h.itemService.ToggleSelect(c.Request.Context(), who, c.Param("id"), c.Param("itemId"), kindOf(c.Query("kind")))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, item)
}
