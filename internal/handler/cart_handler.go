package handler

import (
	"net/http"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /api/cartのHTTP
type CartHandler struct {
	uc *usecase.CartUsecase
}

// DI
func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

type CartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type cartResponse struct {
	Response
	Cart model.Cart `json:"cartData"`
}

func (h *CartHandler) RegisterRoutes(e *echo.Echo, guards Guards) {
	g := e.Group("/api/cart", guards.User()...)

	g.GET("", h.getCart)
	g.POST("/add", h.addToCart)
	g.PUT("/update", h.updateItem)
	g.DELETE("", h.clear)
}

func (h *CartHandler) getCart(c echo.Context) error {
	userID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	out, err := h.uc.GetCart(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, cartResponse{Response: success(""), Cart: out})
}

func (h *CartHandler) addToCart(c echo.Context) error {
	userID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	var req CartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fail("invalid body"))
	}

	out, err := h.uc.AddToCart(c.Request().Context(), userID, usecase.AddCartInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, cartResponse{Response: success("Added to cart"), Cart: out})
}

func (h *CartHandler) updateItem(c echo.Context) error {
	userID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	var req CartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fail("invalid body"))
	}

	out, err := h.uc.UpdateCart(c.Request().Context(), userID, usecase.UpdateCartInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, cartResponse{Response: success("Cart updated"), Cart: out})
}

func (h *CartHandler) clear(c echo.Context) error {
	userID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	if err := h.uc.ClearCart(c.Request().Context(), userID); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, cartResponse{Response: success("Cart cleared"), Cart: model.Cart{}})
}
