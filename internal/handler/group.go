package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GiftList/internal/permission"
	"github.com/Gopher0727/GiftList/internal/service"
	logger "github.com/Gopher0727/GiftList/middleware/log"
)

type GroupHandler struct {
	groupService service.IGroupService
	log          *logger.Logger
}

func NewGroupHandler(groupService service.IGroupService, log *logger.Logger) *GroupHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &GroupHandler{groupService: groupService, log: log.Named("handler")}
}

type createGroupRequest struct {
	Variant       string  `json:"variant" binding:"required"`
	Name          string  `json:"name"`
	ParentGroupID *string `json:"parentGroupId"`
}

// CreateGroup handles group creation
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	variant, err := permission.ParseVariant(req.Variant)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	group, err := h.groupService.CreateGroup(c.Request.Context(), who, variant, req.Name, req.ParentGroupID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

// ListGroups returns the caller's top-level groups
func (h *GroupHandler) ListGroups(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	groups, err := h.groupService.ListGroups(c.Request.Context(), who)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (h *GroupHandler) GetGroup(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	group, err := h.groupService.GetGroup(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *GroupHandler) RenameGroup(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	group, err := h.groupService.RenameGroup(c.Request.Context(), who, c.Param("id"), req.Name)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// DeleteGroup answers with the delete status; denied and missing groups are
// reported in the body as well as the status code.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	res, err := h.groupService.DeleteGroup(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	status := http.StatusOK
	switch res.Status {
	case service.DeleteStatusNotFound:
		status = http.StatusNotFound
	case service.DeleteStatusForbidden:
		status = http.StatusForbidden
	}
	c.JSON(status, res)
}

func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	res, err := h.groupService.LeaveGroup(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CreateInvite issues an invite link, optionally mailing it
func (h *GroupHandler) CreateInvite(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	// 请求体可选
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	inv, err := h.groupService.CreateInvite(c.Request.Context(), who, c.Param("id"), req.Email)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (h *GroupHandler) AcceptInvite(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	group, err := h.groupService.AcceptInvite(c.Request.Context(), who, req.Token)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *GroupHandler) KickMember(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	if err := h.groupService.KickMember(c.Request.Context(), who, c.Param("id"), c.Param("userId")); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetMemberPermissions replaces a member's permission set
func (h *GroupHandler) SetMemberPermissions(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req struct {
		Permissions []string `json:"permissions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	perms := make([]permission.Permission, 0, len(req.Permissions))
	for _, raw := range req.Permissions {
		p, err := permission.Parse(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		perms = append(perms, p)
	}

	group, err := h.groupService.SetMemberPermissions(c.Request.Context(), who, c.Param("id"), c.Param("userId"), permission.NewSet(perms...))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, group)
}
