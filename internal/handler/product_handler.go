package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// すべてのレスポンスは {success, message, ...}
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func success(message string) Response {
	return Response{Success: true, Message: message}
}

func fail(message string) Response {
	return Response{Success: false, Message: message}
}

// ErrorKind → HTTPステータス
var kindStatus = map[usecase.ErrorKind]int{
	usecase.KindValidation:         http.StatusBadRequest,
	usecase.KindNotFound:           http.StatusNotFound,
	usecase.KindInvalidState:       http.StatusConflict,
	usecase.KindInvalidStatus:      http.StatusBadRequest,
	usecase.KindMismatch:           http.StatusBadRequest,
	usecase.KindExpired:            http.StatusGone,
	usecase.KindUnauthorized:       http.StatusUnauthorized,
	usecase.KindForbidden:          http.StatusForbidden,
	usecase.KindNotCancellable:     http.StatusConflict,
	usecase.KindConflict:           http.StatusConflict,
	usecase.KindRateLimited:        http.StatusTooManyRequests,
	usecase.KindPaymentUnavailable: http.StatusBadGateway,
	usecase.KindNotImplemented:     http.StatusNotImplemented,
	usecase.KindInternal:           http.StatusInternalServerError,
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if ue, found := usecase.AsError(err); found {
		status, known := kindStatus[ue.Kind]
		if !known {
			status = http.StatusInternalServerError
		}
		return c.JSON(status, fail(ue.Message))
	}

	//500
	return c.JSON(http.StatusInternalServerError, fail("internal error"))
}

func getUserIDFromContext(c echo.Context) (string, bool) {
	id, found := c.Get(middleware.CtxUserIDKey).(string)
	if !found || id == "" {
		return "", false
	}
	return id, true
}

func getIdentity(c echo.Context) (usecase.Identity, bool) {
	id, found := getUserIDFromContext(c)
	if !found {
		return usecase.Identity{}, false
	}
	role, _ := c.Get(middleware.CtxUserRoleKey).(model.Role)
	return usecase.Identity{UserID: id, Role: role}, true
}

// /api/product の公開API
type ProductHandler struct {
	uc *usecase.ProductUsecase
}

// DI
func NewProductHandler(uc *usecase.ProductUsecase) *ProductHandler {
	return &ProductHandler{uc: uc}
}

type productListResponse struct {
	Response
	usecase.ProductListOutput
}

type productResponse struct {
	Response
	Product model.Product `json:"product"`
}

// 公開商品のルートを登録
func (h *ProductHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/product", h.list)
	e.GET("/api/product/:id", h.detail)
}

func (h *ProductHandler) list(c echo.Context) error {
	// page（default 1）
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, fail("invalid page"))
		}
		page = p
	}

	// limit（default 20）
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, fail("invalid limit"))
		}
		limit = l
	}

	bestseller := false
	if v := c.QueryParam("bestseller"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, fail("invalid bestseller"))
		}
		bestseller = b
	}

	out, err := h.uc.ListPublicProducts(c.Request().Context(), usecase.ListProductsInput{
		Page:       page,
		Limit:      limit,
		Q:          c.QueryParam("q"),
		Category:   c.QueryParam("category"),
		Bestseller: bestseller,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, productListResponse{Response: success(""), ProductListOutput: out})
}

func (h *ProductHandler) detail(c echo.Context) error {
	p, err := h.uc.GetProductDetail(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, productResponse{Response: success(""), Product: p})
}
