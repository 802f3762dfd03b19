package handler

import (
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ProductRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       int64    `json:"price"`
	Category    string   `json:"category"`
	SubCategory string   `json:"sub_category"`
	Sizes       []string `json:"sizes"`
	Bestseller  bool     `json:"bestseller"`
	IsActive    *bool    `json:"is_active"` // 省略時は公開
}

func (r ProductRequest) input() usecase.AdminProductInput {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return usecase.AdminProductInput{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Category:    r.Category,
		SubCategory: r.SubCategory,
		Sizes:       r.Sizes,
		Bestseller:  r.Bestseller,
		IsActive:    active,
	}
}

// /api/admin/products
type AdminProductHandler struct {
	uc *usecase.ProductUsecase
}

// DI
func NewAdminProductHandler(uc *usecase.ProductUsecase) *AdminProductHandler {
	return &AdminProductHandler{uc: uc}
}

// adminを登録
func (h *AdminProductHandler) RegisterRoutes(e *echo.Echo, guards Guards) {
	admin := e.Group("/api/admin", guards.Admin()...)

	admin.POST("/products", h.createProduct)
	admin.PUT("/products/:id", h.updateProduct)
	admin.DELETE("/products/:id", h.deleteProduct)
}

func (h *AdminProductHandler) createProduct(c echo.Context) error {
	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fail("invalid body"))
	}

	adminID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	p, err := h.uc.AdminCreateProduct(c.Request().Context(), adminID, req.input())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, productResponse{Response: success("Product added"), Product: p})
}

func (h *AdminProductHandler) updateProduct(c echo.Context) error {
	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fail("invalid body"))
	}

	adminID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	p, err := h.uc.AdminUpdateProduct(c.Request().Context(), adminID, c.Param("id"), req.input())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, productResponse{Response: success("Product updated"), Product: p})
}

func (h *AdminProductHandler) deleteProduct(c echo.Context) error {
	adminID, found := getUserIDFromContext(c)
	if !found {
		return c.JSON(http.StatusUnauthorized, fail("unauthorized"))
	}

	if err := h.uc.AdminRemoveProduct(c.Request().Context(), adminID, c.Param("id")); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, success("Product removed"))
}
