package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/edusystems/school_management/internal/config"
	"github.com/edusystems/school_management/internal/es"
	announcementh "github.com/edusystems/school_management/internal/handlers/announcement"
	authh "github.com/edusystems/school_management/internal/handlers/auth"
	mealplanh "github.com/edusystems/school_management/internal/handlers/mealplan"
	"github.com/edusystems/school_management/internal/logging"
	"github.com/edusystems/school_management/internal/metrics"
	authmw "github.com/edusystems/school_management/internal/middleware/auth"
	"github.com/edusystems/school_management/internal/middleware/ratelimit"
	"github.com/edusystems/school_management/internal/mykafka"
	"github.com/edusystems/school_management/internal/store"
	"github.com/edusystems/school_management/internal/token"
	httpserver "github.com/edusystems/school_management/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}

	tokens := token.NewService([]byte(configuration.JWT_SECRET), []byte(configuration.REFRESH_SECRET))
	tokens.AccessTTL = configuration.ACCESS_TTL
	tokens.RefreshTTL = configuration.REFRESH_TTL

	credentials := store.NewCredentialStore(db)
	credentials.MaxFailedAttempts = uint(configuration.MAX_LOGIN_FAILS)
	credentials.LockoutDuration = configuration.LOCKOUT_DURATION

	mealPlans := store.NewMealPlanStore(db)

	var prod *mykafka.Producer
	if configuration.KAFKA_ADDRESS != "" {
		prod, err = mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})
		if err != nil {
			log.Fatal(err)
		}
	}

	var esClient *elasticsearch.Client
	if configuration.ES_URL != "" {
		esClient, err = es.NewClient(configuration)
		if err != nil {
			logger.Warn("elasticsearch unavailable, search disabled", "error", err)
			esClient = nil
		}
	}

	var rdb *redis.Client
	if configuration.REDIS_ADDR != "" {
		rdb = redis.NewClient(&redis.Options{Addr: configuration.REDIS_ADDR})
	}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(logging.RequestLogger(logger))

	deps := httpserver.Deps{
		DB:                  db,
		AuthHandler:         &authh.AuthHandler{Store: credentials, Tokens: tokens, Producer: prod},
		AnnouncementHandler: &announcementh.AnnouncementHandler{DB: db, Producer: prod, ES: esClient, Index: "announcement"},
		MealPlanHandler:     &mealplanh.MealPlanHandler{Store: mealPlans, Producer: prod},
		Auth:                &authmw.Middleware{Tokens: tokens, Store: credentials},
		LoginLimiter:        ratelimit.NewLimiter(rdb, 10, time.Minute),
	}

	httpserver.Register(e, &deps)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				n, err := mealPlans.AutoApproveStale(rootCtx, configuration.AUTO_APPROVE_AGE)
				if err != nil {
					logger.Error("meal plan auto-approval sweep failed", "error", err)
					continue
				}
				if n > 0 {
					metrics.MealPlanAutoApprovalsTotal.Add(float64(n))
					logger.Info("auto-approved stale meal plans", "count", n)
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:         configuration.HTTP_ADDR,
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

	<-rootCtx.Done()

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

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}

	log.Println("shutdown complete")
}
