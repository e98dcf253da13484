package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/souqdev/souq/internal/hash"
	"github.com/souqdev/souq/internal/models"
	"github.com/souqdev/souq/internal/mykafka"
)

type AuthHandler struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
	Producer      *mykafka.Producer
}

func CreateCookie(name string, value string, path string, expTime time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expTime,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *AuthHandler) publish(c echo.Context, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "user_events", fmt.Sprint(event["userID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password required")
	}

	passwordHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	var existing models.User
	result := h.DB.Where("username=?", req.Username).First(&existing)
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusConflict, "user already exists")
	}

	user := models.User{
		Username:     req.Username,
		PasswordHash: passwordHash,
		Role:         "user",
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	h.publish(c, map[string]any{
		"type":     "user_registered",
		"userID":   user.ID,
		"username": user.Username,
	})

	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	var user models.User
	if err := h.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}

	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}

	accessExp := time.Now().Add(15 * time.Minute)
	accessClaims := jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"exp":  accessExp.Unix(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(h.JWTSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	refreshExp := time.Now().Add(7 * 24 * time.Hour)
	refreshClaims := jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"exp":  refreshExp.Unix(),
		"typ":  "refresh",
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(h.RefreshSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	stored := models.RefreshToken{
		Token:     refreshToken,
		UserID:    user.ID,
		ExpiresAt: refreshExp.Unix(),
	}
	if err := h.DB.Create(&stored).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	c.SetCookie(CreateCookie("accessToken", accessToken, "/", accessExp))
	c.SetCookie(CreateCookie("refreshToken", refreshToken, "/", refreshExp))

	h.publish(c, map[string]any{
		"type":   "user_logged_in",
		"userID": user.ID,
	})

	return c.JSON(http.StatusOK, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"role":     user.Role,
	})
}

func (h *AuthHandler) LogOut(c echo.Context) error {
	if cookie, err := c.Cookie("refreshToken"); err == nil && cookie.Value != "" {
		if err := h.DB.Model(&models.RefreshToken{}).
			Where("token=?", cookie.Value).
			Update("revoked", true).Error; err != nil {
			c.Logger().Errorf("revoke refresh token error: %v", err)
		}
	}

	expired := time.Now().Add(-time.Hour)
	c.SetCookie(CreateCookie("accessToken", "", "/", expired))
	c.SetCookie(CreateCookie("refreshToken", "", "/", expired))

	return c.JSON(http.StatusOK, map[string]string{"status": "logged out"})
}
