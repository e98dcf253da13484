package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/souqdev/souq/internal/models"
)

var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not found")

	ErrInactive  = fmt.Errorf("coupon is inactive: %w", ErrValidation)
	ErrExpired   = fmt.Errorf("coupon has expired: %w", ErrValidation)
	ErrExhausted = fmt.Errorf("coupon usage limit reached: %w", ErrValidation)
)

// Service owns every coupon business rule. Clients never compute a
// discount themselves; they ask this service what a code yields for a
// given order total.
type Service struct {
	DB *gorm.DB

	// Now is a test seam; nil means time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("code required: %w", ErrValidation)
	}

	var c models.Coupon
	if err := s.DB.WithContext(ctx).Where("code = ?", code).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("coupon not found: %w", ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

// Validate reports whether a code is currently usable. It does not look
// at any order total; minimum-order checks belong to Calculate.
func (s *Service) Validate(ctx context.Context, code string) error {
	c, err := s.FindByCode(ctx, code)
	if err != nil {
		return err
	}

	if !c.Active {
		return ErrInactive
	}
	if c.ExpiresAt != nil && s.now().After(*c.ExpiresAt) {
		return ErrExpired
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return ErrExhausted
	}
	return nil
}

// Calculate resolves the discount amount a code yields for the given
// order total. Percentage coupons scale with the total, fixed coupons
// are capped at it so the discount can never exceed what is being paid.
func (s *Service) Calculate(ctx context.Context, code string, total float64) (float64, error) {
	if err := s.Validate(ctx, code); err != nil {
		return 0, err
	}

	c, err := s.FindByCode(ctx, code)
	if err != nil {
		return 0, err
	}

	if total < 0 {
		return 0, fmt.Errorf("total must be >= 0: %w", ErrValidation)
	}
	if c.MinOrder > 0 && total < c.MinOrder {
		return 0, fmt.Errorf("order total below coupon minimum of %.2f: %w", c.MinOrder, ErrValidation)
	}

	var discount float64
	switch c.Type {
	case models.CouponPercentage:
		discount = total * c.Value / 100
	case models.CouponFixed:
		discount = c.Value
	default:
		return 0, fmt.Errorf("unknown coupon type %q: %w", c.Type, ErrValidation)
	}

	if discount > total {
		discount = total
	}
	if discount < 0 {
		discount = 0
	}
	return discount, nil
}

// MarkUsed bumps the use counter inside the caller's transaction.
func (s *Service) MarkUsed(tx *gorm.DB, code string) error {
	res := tx.Model(&models.Coupon{}).
		Where("code = ?", code).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("coupon not found: %w", ErrNotFound)
	}
	return nil
}
