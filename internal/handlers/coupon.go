package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/souqdev/souq/internal/logging"
	"github.com/souqdev/souq/internal/models"
	"github.com/souqdev/souq/internal/service/coupon"
)

type CouponHandler struct {
	DB      *gorm.DB
	Coupons *coupon.Service
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

type calculateResponse struct {
	Discount float64 `json:"discount"`
	Error    string  `json:"error,omitempty"`
}

// Validate reports whether a code is usable right now. Rule failures are
// part of the response body, not HTTP errors; the status is 200 either way
// so clients can branch on the payload.
func (h *CouponHandler) Validate(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "validate.coupon")

	code := c.Param("code")
	if err := h.Coupons.Validate(ctx, code); err != nil {
		if errors.Is(err, coupon.ErrValidation) || errors.Is(err, coupon.ErrNotFound) {
			return c.JSON(http.StatusOK, validateResponse{Valid: false, Message: err.Error()})
		}
		l.Error("validate_coupon_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, validateResponse{Valid: true})
}

// Calculate resolves the discount a code yields for ?total=N. Failures
// resolve to a zero discount plus a message so the caller always gets a
// definite amount.
func (h *CouponHandler) Calculate(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "calculate.coupon")

	code := c.Param("code")
	total, err := strconv.ParseFloat(c.QueryParam("total"), 64)
	if err != nil {
		return c.JSON(http.StatusOK, calculateResponse{Discount: 0, Error: "invalid total"})
	}

	discount, err := h.Coupons.Calculate(ctx, code, total)
	if err != nil {
		if errors.Is(err, coupon.ErrValidation) || errors.Is(err, coupon.ErrNotFound) {
			return c.JSON(http.StatusOK, calculateResponse{Discount: 0, Error: err.Error()})
		}
		l.Error("calculate_coupon_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, calculateResponse{Discount: discount})
}

type couponRequest struct {
	Code      string     `json:"code"`
	Type      string     `json:"type"`
	Value     float64    `json:"value"`
	MinOrder  float64    `json:"min_order"`
	MaxUses   uint       `json:"max_uses"`
	ExpiresAt *time.Time `json:"expires_at"`
	Active    *bool      `json:"active"`
}

func (h *CouponHandler) CreateCoupon(c echo.Context) error {
	var req couponRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, "invalid body")
	}
	if req.Code == "" || req.Value <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "code and positive value required")
	}
	t := models.CouponType(req.Type)
	if t != models.CouponPercentage && t != models.CouponFixed {
		return echo.NewHTTPError(http.StatusBadRequest, "type must be percentage or fixed")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	cpn := models.Coupon{
		Code:      req.Code,
		Type:      t,
		Value:     req.Value,
		MinOrder:  req.MinOrder,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
		Active:    active,
	}
	if err := h.DB.Create(&cpn).Error; err != nil {
		return echo.NewHTTPError(http.StatusConflict, "coupon already exists")
	}

	return c.JSON(http.StatusCreated, cpn)
}

func (h *CouponHandler) ListCoupons(c echo.Context) error {
	var coupons []models.Coupon
	if err := h.DB.Order("code ASC").Find(&coupons).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, coupons)
}

func (h *CouponHandler) PatchCoupon(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var cpn models.Coupon
	if err := h.DB.First(&cpn, "id = ?", id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "coupon not found")
	}

	var req couponRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, "invalid body")
	}

	if req.Code != "" {
		cpn.Code = req.Code
	}
	if req.Type != "" {
		cpn.Type = models.CouponType(req.Type)
	}
	if req.Value > 0 {
		cpn.Value = req.Value
	}
	cpn.MinOrder = req.MinOrder
	cpn.MaxUses = req.MaxUses
	if req.ExpiresAt != nil {
		cpn.ExpiresAt = req.ExpiresAt
	}
	if req.Active != nil {
		cpn.Active = *req.Active
	}

	if err := h.DB.Save(&cpn).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, cpn)
}

func (h *CouponHandler) DeleteCoupon(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.DB.Delete(&models.Coupon{}, "id = ?", id).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}
