package cart

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/souqdev/souq/internal/logging"
	"github.com/souqdev/souq/internal/models"
	"github.com/souqdev/souq/internal/mykafka"
	"github.com/souqdev/souq/internal/service/coupon"
)

type CartHandler struct {
	DB          *gorm.DB
	Producer    *mykafka.Producer
	Coupons     *coupon.Service
	DeliveryFee float64
}

type cartResponse struct {
	Items []models.CartItem `json:"items"`
}

func (h *CartHandler) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "get.cart")

	userID, err := GetID(c)
	if err != nil {
		l.Error("get_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	items, err := listItems(h.DB.WithContext(ctx), userID)
	if err != nil {
		l.Error("get_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, cartResponse{Items: items})
}

// AddToCart merges by product id: an existing line has its quantity
// incremented, otherwise a new line is appended. The stored unit price is
// the product's effective price at add time regardless of any price hint
// in the request.
func (h *CartHandler) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "add.cart")

	userID, err := GetID(c)
	if err != nil {
		l.Error("add_to_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	var req struct {
		ProductID uint    `json:"product_id"`
		Quantity  uint    `json:"quantity"`
		Size      string  `json:"size"`
		Color     string  `json:"color"`
		Price     float64 `json:"price"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("add_to_cart_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid body")
	}
	if req.ProductID == 0 {
		return c.JSON(http.StatusBadRequest, "product_id required")
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	txErr := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, req.ProductID).Error; err != nil {
			return err
		}

		res := tx.Model(&models.CartItem{}).
			Where("user_id = ? AND product_id = ?", userID, req.ProductID).
			Update("quantity", gorm.Expr("quantity + ?", req.Quantity))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		item := models.CartItem{
			UserID:    userID,
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			Size:      req.Size,
			Color:     req.Color,
			Price:     product.EffectivePrice(time.Now()),
		}
		return tx.Create(&item).Error
	})
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrRecordNotFound) {
			l.Warn("add_to_cart_not_found", "status", 404, "product_id", req.ProductID)
			return c.JSON(http.StatusNotFound, "product not found")
		}
		l.Error("add_to_cart_error", "status", 500, "error", txErr)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}

	items, err := listItems(h.DB.WithContext(ctx), userID)
	if err != nil {
		l.Error("add_to_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, map[string]any{
		"type":      "cart_item_added",
		"userID":    userID,
		"productID": req.ProductID,
		"quantity":  req.Quantity,
	})
	return c.JSON(http.StatusOK, cartResponse{Items: items})
}

// UpdateQuantity sets an absolute quantity for a product line. A quantity
// of zero or less removes the line.
func (h *CartHandler) UpdateQuantity(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "update.cart")

	userID, err := GetID(c)
	if err != nil {
		l.Error("update_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	productID, err := strconv.Atoi(c.Param("id"))
	if err != nil || productID <= 0 {
		return c.JSON(http.StatusBadRequest, "invalid id")
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("update_cart_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, "invalid body")
	}

	txErr := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.CartItem
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND product_id = ?", userID, productID).
			First(&item).Error; err != nil {
			return err
		}
		if req.Quantity <= 0 {
			return tx.Delete(&item).Error
		}
		return tx.Model(&item).Update("quantity", req.Quantity).Error
	})
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrRecordNotFound) {
			l.Warn("update_cart_not_found", "status", 404, "product_id", productID)
			return c.JSON(http.StatusNotFound, "item not found")
		}
		l.Error("update_cart_error", "status", 500, "error", txErr)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}

	items, err := listItems(h.DB.WithContext(ctx), userID)
	if err != nil {
		l.Error("update_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, map[string]any{
		"type":      "cart_quantity_updated",
		"userID":    userID,
		"productID": productID,
		"quantity":  req.Quantity,
	})
	return c.JSON(http.StatusOK, cartResponse{Items: items})
}

func (h *CartHandler) RemoveFromCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "remove.cart")

	userID, err := GetID(c)
	if err != nil {
		l.Error("remove_from_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	productID, err := strconv.Atoi(c.Param("id"))
	if err != nil || productID <= 0 {
		return c.JSON(http.StatusBadRequest, "invalid id")
	}

	if err := h.DB.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.CartItem{}).Error; err != nil {
		l.Error("remove_from_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}

	items, err := listItems(h.DB.WithContext(ctx), userID)
	if err != nil {
		l.Error("remove_from_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, map[string]any{
		"type":      "cart_item_removed",
		"userID":    userID,
		"productID": productID,
	})
	return c.JSON(http.StatusOK, cartResponse{Items: items})
}

func (h *CartHandler) ClearCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "clear.cart")

	userID, err := GetID(c)
	if err != nil {
		l.Error("clear_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	if err := h.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.CartItem{}).Error; err != nil {
		l.Error("clear_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, map[string]any{
		"type":   "cart_cleared",
		"userID": userID,
	})
	return c.JSON(http.StatusOK, cartResponse{Items: []models.CartItem{}})
}

// MakeOrder turns the cart into an order. Prices are re-read from the
// catalog, the coupon is re-resolved server-side against the real
// subtotal, and the cart plus coupon use count are updated in the same
// transaction.
func (h *CartHandler) MakeOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.cart")

	userID, err := GetID(c)
	if err != nil {
		l.Error("make_order_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, "unauthorized")
	}

	var req struct {
		CouponCode string `json:"coupon_code"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, "invalid body")
	}

	var order models.Order
	var orderItems []models.OrderItem

	txErr := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []models.CartItem
		if err := tx.Where("user_id = ?", userID).Order("id ASC").Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "no items in cart")
		}

		now := time.Now()
		var subtotal float64
		orderItems = make([]models.OrderItem, 0, len(items))
		for _, it := range items {
			var p models.Product
			if err := tx.First(&p, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return echo.NewHTTPError(http.StatusBadRequest, "product not found")
				}
				return err
			}
			unit := p.EffectivePrice(now)
			subtotal += unit * float64(it.Quantity)
			orderItems = append(orderItems, models.OrderItem{
				UserID:    userID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Size:      it.Size,
				Color:     it.Color,
				UnitPrice: unit,
			})
		}

		var discount float64
		if req.CouponCode != "" {
			d, err := h.Coupons.Calculate(ctx, req.CouponCode, subtotal)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			if err := h.Coupons.MarkUsed(tx, req.CouponCode); err != nil {
				return err
			}
			discount = d
		}

		total := subtotal - discount + h.DeliveryFee
		if total < 0 {
			total = 0
		}

		order = models.Order{
			UserID:      userID,
			Subtotal:    subtotal,
			Discount:    discount,
			DeliveryFee: h.DeliveryFee,
			Total:       total,
			CouponCode:  req.CouponCode,
			Status:      "new",
			CreatedAt:   now.Unix(),
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		for i := range orderItems {
			orderItems[i].OrderID = order.ID
			if err := tx.Create(&orderItems[i]).Error; err != nil {
				return err
			}
		}

		return tx.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error
	})
	if txErr != nil {
		if he, ok := txErr.(*echo.HTTPError); ok {
			return he
		}
		l.Error("make_order_error", "status", 500, "error", txErr)
		return c.JSON(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, map[string]any{
		"type":    "order_created",
		"userID":  userID,
		"orderID": order.ID,
		"total":   order.Total,
	})

	return c.JSON(http.StatusOK, map[string]any{
		"order_id":     order.ID,
		"subtotal":     order.Subtotal,
		"discount":     order.Discount,
		"delivery_fee": order.DeliveryFee,
		"total":        order.Total,
		"status":       order.Status,
		"items":        orderItems,
	})
}
