package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/souqdev/souq/internal/config"
	"github.com/souqdev/souq/internal/es"
	"github.com/souqdev/souq/internal/handlers"
	"github.com/souqdev/souq/internal/handlers/cart"
	"github.com/souqdev/souq/internal/logging"
	"github.com/souqdev/souq/internal/middleware/loggingmw"
	"github.com/souqdev/souq/internal/mykafka"
	"github.com/souqdev/souq/internal/service/coupon"
	"github.com/souqdev/souq/internal/service/token"
	httpserver "github.com/souqdev/souq/internal/transport/http"
)

func main() {
	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}

	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	config.MustNonEmpty(configuration.JWT_SECRET, "JWT_SECRET")
	config.MustNonEmpty(configuration.REFRESH_SECRET, "REFRESH_SECRET")

	logger := logging.New(configuration.LOG_LEVEL)
	slog.SetDefault(logger)

	jwtSecret := []byte(configuration.JWT_SECRET)
	refreshSecret := []byte(configuration.REFRESH_SECRET)

	topics := []string{"user_events", "cart_events", "product_events", "coupon_events"}
	prod, err := mykafka.NewProducer(configuration.KAFKA_BROKERS, topics)
	if err != nil {
		log.Fatal(err)
	}

	esClient, err := es.NewClient(configuration)
	if err != nil {
		log.Fatal(err)
	}

	couponSvc := &coupon.Service{DB: db}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(loggingmw.RequestLogger(logger))

	deps := httpserver.Deps{
		DB:             db,
		AuthHandler:    &handlers.AuthHandler{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret, Producer: prod},
		ProductHandler: &handlers.ProductHandler{DB: db, Producer: prod, JWTSecret: jwtSecret},
		CouponHandler:  &handlers.CouponHandler{DB: db, Coupons: couponSvc},
		CartHandler:    &cart.CartHandler{DB: db, Producer: prod, Coupons: couponSvc, DeliveryFee: configuration.DELIVERY_FEE},
		ServiceHandler: &token.TokenService{DB: db, RefreshSecret: refreshSecret, JWTSecret: jwtSecret},
		SearchHandler:  &handlers.SearchHandler{ES: esClient, Index: "product"},
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
