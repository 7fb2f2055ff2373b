package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/GiftList/internal/service"
	"github.com/Gopher0727/GiftList/middleware/jwt"
	logger "github.com/Gopher0727/GiftList/middleware/log"
)

// statusOf 将服务层错误映射为 HTTP 状态码，未知错误一律 500
var statusOf = []struct {
	status int
	errs   []error
}{
	{http.StatusBadRequest, []error{
		service.ErrInvalidName,
		service.ErrInvalidBody,
		service.ErrTooManyLinks,
		service.ErrInvalidEmail,
		service.ErrUnknownVariant,
	}},
	{http.StatusForbidden, []error{
		service.ErrNotAMember,
		service.ErrInsufficientPermission,
		service.ErrNotItemAuthor,
		service.ErrInvalidParent,
		service.ErrLeaveChildForbidden,
		service.ErrInviteChildForbidden,
		service.ErrKickChildForbidden,
		service.ErrCannotKickSelf,
	}},
	{http.StatusNotFound, []error{
		service.ErrGroupNotFound,
		service.ErrItemNotFound,
		service.ErrParentNotFound,
		service.ErrMemberNotFound,
	}},
	{http.StatusConflict, []error{
		service.ErrAlreadyMember,
		service.ErrItemCapReached,
		service.ErrInvalidInvite,
		service.ErrMissingParent,
		service.ErrPermissionNotAllowed,
		service.ErrItemKindUnsupported,
		service.ErrMessagesUnsupported,
	}},
}

// writeError answers with the status of a known service error. Anything else,
// consistency faults included, is logged and answered with an opaque 500.
func writeError(c *gin.Context, log *logger.Logger, err error) {
	if !errors.Is(err, service.ErrConsistency) {
		for _, class := range statusOf {
			for _, known := range class.errs {
				if errors.Is(err, known) {
					c.JSON(class.status, gin.H{"error": known.Error()})
					return
				}
			}
		}
	}
	log.ErrorContext(c.Request.Context(), "request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// identity reads the caller stored by the jwt middleware.
func identity(c *gin.Context) (service.Identity, bool) {
	userID := c.GetString(jwt.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return service.Identity{}, false
	}
	return service.Identity{ID: userID, DisplayName: c.GetString(jwt.ContextDisplayName)}, true
}
