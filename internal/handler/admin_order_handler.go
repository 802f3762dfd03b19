package handler

import (
	"net/http"
	"strconv"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminOrderHandler struct {
	uc *usecase.AdminOrderUsecase
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc}
}

type OrderStatusUpdateRequest struct {
	Status string `json:"status"`
}

type adminOrdersResponse struct {
	Response
	usecase.AdminOrderListOutput
}

type auditLogsResponse struct {
	Response
	Logs []model.AuditLog `json:"logs"`
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, guards Guards) {
	admin := e.Group("/api/admin", guards.Admin()...)

	admin.GET("/orders", h.list)
	admin.PUT("/orders/:id/status", h.updateStatus)
	admin.GET("/orders/:id/history", h.history)
	admin.GET("/audit-logs", h.auditLogs)
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, fail("invalid page"))
		}
		page = p
	}

	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, fail("invalid limit"))
		}
		limit = l
	}

	fromPtr, err := parseTimeParam(c.QueryParam("from"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fail("invalid from"))
	}
	toPtr, err := parseTimeParam(c.QueryParam("to"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fail("invalid to"))
	}

	out, err := h.uc.List(c.Request().Context(), repository.AdminOrderListFilter{
		Page:   page,
		Limit:  limit,
		Status: c.QueryParam("status"),
		UserID: c.QueryParam("user_id"),
		From:   fromPtr,
		To:     toPtr,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, adminOrdersResponse{Response: success(""), AdminOrderListOutput: out})
}

func (h *AdminOrderHandler) updateStatus(c echo.Context) error {
	var req OrderStatusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fail("invalid body"))
	}

	// 操作した管理者（監査ログ用）
	adminID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	if err := h.uc.UpdateStatus(c.Request().Context(), adminID, c.Param("id"), req.Status); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, success("Status Updated"))
}

func (h *AdminOrderHandler) auditLogs(c echo.Context) error {
	f := repository.AuditLogFilter{
		Actor:      c.QueryParam("actor"),
		ResourceID: c.QueryParam("resource_id"),
	}
	if v := c.QueryParam("action"); v != "" {
		a := model.AuditAction(v)
		f.Action = &a
	}
	if v := c.QueryParam("resource_type"); v != "" {
		rt := model.AuditResourceType(v)
		f.ResourceType = &rt
	}
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, fail("invalid limit"))
		}
		f.Limit = l
	}
	if v := c.QueryParam("offset"); v != "" {
		o, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, fail("invalid offset"))
		}
		f.Offset = o
	}

	var err error
	if f.CreatedFrom, err = parseTimeParam(c.QueryParam("from")); err != nil {
		return c.JSON(http.StatusBadRequest, fail("invalid from"))
	}
	if f.CreatedTo, err = parseTimeParam(c.QueryParam("to")); err != nil {
		return c.JSON(http.StatusBadRequest, fail("invalid to"))
	}

	logs, err := h.uc.ListAuditLogs(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, auditLogsResponse{Response: success(""), Logs: logs})
}

func (h *AdminOrderHandler) history(c echo.Context) error {
	logs, err := h.uc.OrderHistory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, auditLogsResponse{Response: success(""), Logs: logs})
}

// 空ならnil。RFC3339
func parseTimeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	tm, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &tm, nil
}
