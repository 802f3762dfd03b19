package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	uc *usecase.OrderUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase) *OrderHandler {
	return &OrderHandler{uc: uc}
}

// ユーザーIDはJWTから取る（bodyには入れない）
type PlaceOrderRequest struct {
	Items   []model.LineItem `json:"items"`
	Amount  int64            `json:"amount"`
	Address model.Address    `json:"address"`
}

func (r PlaceOrderRequest) input() usecase.PlaceOrderInput {
	return usecase.PlaceOrderInput{Items: r.Items, Amount: r.Amount, Address: r.Address}
}

type OrderIDRequest struct {
	OrderID string `json:"orderId"`
}

type VerifyOTPRequest struct {
	OrderID string `json:"orderId"`
	OTP     string `json:"otp"`
}

type VerifyPaymentRequest struct {
	OrderID string   `json:"orderId"`
	Success flexBool `json:"success"`
}

// フロントは "true"/"false" の文字列でも送ってくる
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = flexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("success must be boolean")
	}
	switch strings.ToLower(s) {
	case "true":
		*b = true
	case "false":
		*b = false
	default:
		return errors.New("success must be boolean")
	}
	return nil
}

type orderPlacedResponse struct {
	Response
	OrderID string `json:"orderId"`
}

type sessionResponse struct {
	Response
	SessionURL string `json:"session_url"`
}

type orderResponse struct {
	Response
	Order model.Order `json:"order"`
}

type ordersResponse struct {
	Response
	Orders []model.Order `json:"orders"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, guards Guards) {
	g := e.Group("/api/order", guards.User()...)

	g.POST("/place", h.placeCOD)
	g.POST("/stripe", h.placeStripe)
	g.POST("/razorpay", h.placeRazorpay)
	g.POST("/verify-otp", h.verifyOTP)
	g.POST("/resend-otp", h.resendOTP)
	g.POST("/verifyStripe", h.verifyStripe)
	g.POST("/cancel", h.cancel)
	g.GET("/userorders", h.list)
	g.GET("/:id", h.detail)
}

func (h *OrderHandler) placeCOD(c echo.Context) error {
	userID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	var req PlaceOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fail("invalid body"))
	}

	out, err := h.uc.PlaceOrderCOD(c.Request().Context(), userID, req.input())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, orderPlacedResponse{Response: success(out.Message), OrderID: out.OrderID})
}

func (h *OrderHandler) placeStripe(c echo.Context) error {
	userID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	var req PlaceOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fail("invalid body"))
	}

	out, err := h.uc.PlaceOrderStripe(c.Request().Context(), userID, req.input())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, sessionResponse{Response: success(""), SessionURL: out.SessionURL})
}

func (h *OrderHandler) placeRazorpay(c echo.Context) error {
	userID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	var req PlaceOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fail("invalid body"))
	}

	_, err := h.uc.PlaceOrderRazorpay(c.Request().Context(), userID, req.input())
	return writeError(c, err)
}

func (h *OrderHandler) verifyOTP(c echo.Context) error {
	userID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	var req VerifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fail("invalid body"))
	}
	if req.OrderID == "" || req.OTP == "" {
		return c.JSON(http.StatusBadRequest, fail("Order ID and OTP are required"))
	}

	if err := h.uc.VerifyOTP(c.Request().Context(), userID, req.OrderID, req.OTP); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, success("Order verified successfully"))
}

func (h *OrderHandler) resendOTP(c echo.Context) error {
	userID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	var req OrderIDRequest
	if err := c.Bind(&req); err != nil || req.OrderID == "" {
		return c.JSON(http.StatusBadRequest, fail("Order ID is required"))
	}

	if err := h.uc.ResendOTP(c.Request().Context(), userID, req.OrderID); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, success("A new OTP has been sent to your email"))
}

func (h *OrderHandler) verifyStripe(c echo.Context) error {
	userID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	var req VerifyPaymentRequest
	if err := c.Bind(&req); err != nil || req.OrderID == "" {
		return c.JSON(http.StatusBadRequest, fail("invalid body"))
	}

	if err := h.uc.VerifyPayment(c.Request().Context(), userID, req.OrderID, bool(req.Success)); err != nil {
		return writeError(c, err)
	}

	if !req.Success {
		return c.JSON(http.StatusOK, Response{Success: false, Message: "Payment was not completed"})
	}
	return c.JSON(http.StatusOK, success("Payment confirmed"))
}

func (h *OrderHandler) cancel(c echo.Context) error {
	userID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	var req OrderIDRequest
	if err := c.Bind(&req); err != nil || req.OrderID == "" {
		return c.JSON(http.StatusBadRequest, fail("Order ID is required"))
	}

	if err := h.uc.CancelOrder(c.Request().Context(), userID, req.OrderID); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, success("Order cancelled"))
}

func (h *OrderHandler) list(c echo.Context) error {
	userID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	out, err := h.uc.ListMyOrders(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ordersResponse{Response: success(""), Orders: out})
}

func (h *OrderHandler) detail(c echo.Context) error {
	ident, found := getIdentity(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	out, err := h.uc.GetOrder(c.Request().Context(), ident, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, orderResponse{Response: success(""), Order: out})
}
