package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/souqdev/souq/internal/models"
)

func (h *CartHandler) publish(c echo.Context, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "cart_events", fmt.Sprint(event["userID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

// GetID reads the user id placed in the echo context by the auth middleware.
func GetID(c echo.Context) (uint, error) {
	v := c.Get("user_id")
	id, ok := v.(uint)
	if !ok || id == 0 {
		return 0, errors.New("unauthorized")
	}
	return id, nil
}

// listItems returns the user's cart in insertion order. Every mutation
// responds with this canonical list so clients can replace their local
// state wholesale instead of merging.
func listItems(db *gorm.DB, userID uint) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := db.Where("user_id = ?", userID).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.CartItem{}
	}
	return items, nil
}
