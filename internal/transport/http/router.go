package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/souqdev/souq/internal/handlers"
	"github.com/souqdev/souq/internal/handlers/cart"
	"github.com/souqdev/souq/internal/middleware/csrf"
	"github.com/souqdev/souq/internal/service/token"
)

type Deps struct {
	DB             *gorm.DB
	AuthHandler    *handlers.AuthHandler
	ProductHandler *handlers.ProductHandler
	CouponHandler  *handlers.CouponHandler
	CartHandler    *cart.CartHandler
	ServiceHandler *token.TokenService
	SearchHandler  *handlers.SearchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)
	v1.GET("/search", d.SearchHandler.Search)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)

	coupons := v1.Group("/coupon")
	coupons.GET("/validate/:code", d.CouponHandler.Validate)
	coupons.GET("/calculate/:code", d.CouponHandler.Calculate)

	admin := v1.Group("/admin", d.ServiceHandler.AutoRefreshMiddlewareAdmin)
	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)
	admin.GET("/coupons", d.CouponHandler.ListCoupons)
	admin.POST("/coupons", d.CouponHandler.CreateCoupon)
	admin.PATCH("/coupons/:id", d.CouponHandler.PatchCoupon)
	admin.DELETE("/coupons/:id", d.CouponHandler.DeleteCoupon)

	// cart mutations ride the auth cookies, so they carry CSRF protection
	userCart := v1.Group("/cart", csrf.Middleware(csrf.Config{}), d.ServiceHandler.AutoRefreshMiddleware)
	userCart.GET("", d.CartHandler.GetCart)
	userCart.POST("", d.CartHandler.AddToCart)
	userCart.PUT("/:id", d.CartHandler.UpdateQuantity)
	userCart.DELETE("/clear", d.CartHandler.ClearCart)
	userCart.DELETE("/:id", d.CartHandler.RemoveFromCart)
	userCart.POST("/order", d.CartHandler.MakeOrder)
}
