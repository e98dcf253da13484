package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/souqdev/souq/internal/models"
	"github.com/souqdev/souq/internal/mykafka"
	"github.com/souqdev/souq/internal/util"
)

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ProductHandler struct {
	DB        *gorm.DB
	Producer  *mykafka.Producer
	JWTSecret []byte
}

func errorResponse(c echo.Context, code int, err error) error {
	return c.JSON(code, Response{
		Status:  "error",
		Message: err.Error(),
	})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func (h *ProductHandler) publish(c echo.Context, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "product_events", fmt.Sprint(event["productID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

type productView struct {
	models.Product
	EffectivePrice float64 `json:"effective_price"`
}

func view(p models.Product, now time.Time) productView {
	return productView{Product: p, EffectivePrice: p.EffectivePrice(now)}
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var product models.Product
	if err := h.DB.First(&product, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	}

	return c.JSON(http.StatusOK, view(product, time.Now()))
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)

	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.Product{}).Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	var items []models.Product
	if err := h.DB.Model(&models.Product{}).Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	now := time.Now()
	data := make([]productView, len(items))
	for i, p := range items {
		data[i] = view(p, now)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": data,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

type productRequest struct {
	Name               string     `json:"name"`
	NameAr             string     `json:"name_ar"`
	Description        string     `json:"description"`
	DescriptionAr      string     `json:"description_ar"`
	Price              float64    `json:"price"`
	OldPrice           float64    `json:"old_price"`
	Count              uint       `json:"count"`
	DiscountAmount     float64    `json:"discount_amount"`
	DiscountPercentage float64    `json:"discount_percentage"`
	DiscountStart      *time.Time `json:"discount_start"`
	DiscountEnd        *time.Time `json:"discount_end"`
	HasActiveDiscount  bool       `json:"has_active_discount"`
}

func (r *productRequest) apply(p *models.Product) {
	p.Name = r.Name
	p.NameAr = r.NameAr
	p.Description = r.Description
	p.DescriptionAr = r.DescriptionAr
	p.Price = r.Price
	p.OldPrice = r.OldPrice
	p.Count = r.Count
	p.DiscountAmount = r.DiscountAmount
	p.DiscountPercentage = r.DiscountPercentage
	p.DiscountStart = r.DiscountStart
	p.DiscountEnd = r.DiscountEnd
	p.HasActiveDiscount = r.HasActiveDiscount
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req productRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, err)
	}
	if req.Name == "" || req.Price < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "name required and price must be >= 0")
	}

	var prod models.Product
	req.apply(&prod)

	if err := h.DB.Create(&prod).Error; err != nil {
		return c.JSON(http.StatusBadRequest, err)
	}

	h.publish(c, map[string]any{
		"type":      "product_created",
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return c.JSON(http.StatusCreated, prod)
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var req productRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, err)
	}

	var prod models.Product
	if err := h.DB.First(&prod, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	}

	req.apply(&prod)

	if err := h.DB.Save(&prod).Error; err != nil {
		return c.JSON(http.StatusBadRequest, err)
	}

	h.publish(c, map[string]any{
		"type":      "product_updated",
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return c.JSON(http.StatusOK, prod)
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if err := h.DB.Delete(&models.Product{}, id).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	h.publish(c, map[string]any{
		"type":      "product_deleted",
		"productID": id,
	})

	return c.NoContent(http.StatusNoContent)
}
