package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"
)

type AuditHandler struct {
	auditService service.AuditService
	gate         *middleware.Gate
}

func NewAuditHandler(auditService service.AuditService, gate *middleware.Gate) *AuditHandler {
	return &AuditHandler{auditService: auditService, gate: gate}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/admin/audit-logs", h.gate.Authenticate())
	{
		group.GET("", h.gate.RequirePermissions(middleware.AllOf, "audit:read"), h.GetAuditLogs)
	}
}

// GetAuditLogs retrieves paginated audit records with actors pre-loaded
// @Summary      Get audit logs
// @Description  Retrieves the audit trail, optionally filtered by action
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        action  query     string  false  "Filter by action"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=[]service.AuditLogResponse}
// @Failure      403     {object}  response.Response
// @Router       /admin/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), c.Query("action"), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithMeta(logs, p.Meta(total)))
}
